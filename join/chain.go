package join

// MergedFields concatenates a matched pair's fields into the output schema §4.7
// prescribes: left schema then right schema (the three window columns
// start/end/key are the caller's responsibility to prepend, since only the caller
// knows the output buffer's column layout).
func MergedFields(r Result) map[string]any {
	out := make(map[string]any, len(r.Left.Fields)+len(r.Right.Fields))
	for k, v := range r.Left.Fields {
		out[k] = v
	}
	for k, v := range r.Right.Fields {
		out[k] = v
	}
	return out
}

// AsRecord re-exposes one join's Result as a Record for a downstream join in a
// chain (§4.7 "Multi-join": "the output of join N is itself a keyed stream whose
// window specification must match the next join's"). The caller supplies the next
// predicate's join key value as nextKey, since the merged schema has no fixed key
// column.
func AsRecord(r Result, nextKey uint64) Record {
	return Record{
		TS:     r.Interval.End,
		Key:    nextKey,
		Fields: MergedFields(r),
	}
}
