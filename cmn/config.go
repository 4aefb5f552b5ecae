package cmn

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QueryManagerMode selects the task-queue topology (§4.4).
type QueryManagerMode string

const (
	ModeDynamic  QueryManagerMode = "Dynamic"
	ModeStatic   QueryManagerMode = "Static"
	ModeNumaAware QueryManagerMode = "NumaAware"
)

// JoinStrategy selects the stream-join execution strategy (§4.7).
type JoinStrategy string

const (
	JoinNestedLoop JoinStrategy = "NestedLoop"
	JoinHash       JoinStrategy = "Hash"
)

// HashJoinConfig configures the hash-join variant.
type HashJoinConfig struct {
	Partitions    int `yaml:"partitions"`
	PageSize      int `yaml:"pageSize"`
	PreAllocPages int `yaml:"preAllocPages"`
	MaxTableSize  int `yaml:"maxTableSize"`
}

// AdaptiveConfig configures the per-pipeline batch-size controller (§4.9).
type AdaptiveConfig struct {
	WindowSize     int     `yaml:"windowSize"`
	IncreaseFactor float64 `yaml:"increaseFactor"`
	DecreaseFactor float64 `yaml:"decreaseFactor"`
	MinBatch       int     `yaml:"minBatch"`
}

// Config is the process-wide, immutable-after-load configuration, the Go analogue of
// the teacher's cmn.GCO global-config-owner singleton: loaded once, then handed down
// through constructors rather than read from a package-level global.
type Config struct {
	NumberOfWorkerThreads int              `yaml:"numberOfWorkerThreads"`
	QueryManagerMode      QueryManagerMode `yaml:"queryManagerMode"`
	NumberOfQueues        int              `yaml:"numberOfQueues"`
	ThreadsPerQueue       int              `yaml:"threadsPerQueue"`

	BufferSize     int `yaml:"bufferSize"`
	NumberOfBuffers int `yaml:"numberOfBuffers"`
	Alignment      int `yaml:"alignment"`

	JoinStrategy JoinStrategy   `yaml:"joinStrategy"`
	HashJoin     HashJoinConfig `yaml:"hashJoin"`

	TerminationTimeout time.Duration  `yaml:"termination.timeout"`
	Adaptive           AdaptiveConfig `yaml:"adaptive"`
}

// Default returns the configuration with the §6 defaults applied, except that
// NumberOfWorkerThreads is 1 rather than the machine's hardware concurrency.
func Default() *Config {
	return &Config{
		NumberOfWorkerThreads: 1,
		QueryManagerMode:      ModeDynamic,
		NumberOfQueues:        1,
		ThreadsPerQueue:       1,
		BufferSize:            8192,
		NumberOfBuffers:       1024,
		Alignment:             64,
		JoinStrategy:          JoinNestedLoop,
		HashJoin: HashJoinConfig{
			Partitions:    16,
			PageSize:      4096,
			PreAllocPages: 4,
			MaxTableSize:  1 << 20,
		},
		TerminationTimeout: 10 * time.Minute,
		Adaptive: AdaptiveConfig{
			WindowSize:     10,
			IncreaseFactor: 1.1,
			DecreaseFactor: 0.9,
			MinBatch:       1,
		},
	}
}

// LoadFile reads a YAML config document, overlaying it onto Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errorsWrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errorsWrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants §4.2/§4.4 require at load time.
func (c *Config) Validate() error {
	if c.Alignment <= 0 || c.Alignment&(c.Alignment-1) != 0 {
		return NewErrConfiguration("alignment %d is not a power of two", c.Alignment)
	}
	if c.QueryManagerMode == ModeStatic {
		if c.ThreadsPerQueue <= 0 || c.NumberOfQueues <= 0 {
			return NewErrConfiguration("static mode requires numberOfQueues and threadsPerQueue > 0")
		}
		if c.NumberOfQueues*c.ThreadsPerQueue != c.NumberOfWorkerThreads {
			return NewErrConfiguration("static mode requires numberOfQueues*threadsPerQueue (%d) == numberOfWorkerThreads (%d)",
				c.NumberOfQueues*c.ThreadsPerQueue, c.NumberOfWorkerThreads)
		}
	}
	return nil
}

func errorsWrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return NewErrConfiguration("%s: %v", msg, err)
}
