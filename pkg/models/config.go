package models

// Config is the flakeview configuration file (config.yaml).
type Config struct {
	Snowflake  Snowflake  `yaml:"snowflake" mapstructure:"snowflake"`
	Deployment Deployment `yaml:"deployment" mapstructure:"deployment"`
	History    History    `yaml:"history" mapstructure:"history"`
	Keygen     Keygen     `yaml:"keygen" mapstructure:"keygen"`
	Log        Log        `yaml:"log" mapstructure:"log"`
}

// Snowflake holds the connection settings. Password and PrivateKey are
// normally supplied through the environment or the credential store rather
// than written to disk.
type Snowflake struct {
	Account        string `yaml:"account" mapstructure:"account"`
	User           string `yaml:"user" mapstructure:"user"`
	Password       string `yaml:"password,omitempty" mapstructure:"password"`
	PrivateKey     string `yaml:"private_key,omitempty" mapstructure:"private_key"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty" mapstructure:"private_key_path"`
	Role           string `yaml:"role,omitempty" mapstructure:"role"`
	Warehouse      string `yaml:"warehouse" mapstructure:"warehouse"`
	Database       string `yaml:"database" mapstructure:"database"`
	Schema         string `yaml:"schema" mapstructure:"schema"`
	LoginTimeout   string `yaml:"login_timeout,omitempty" mapstructure:"login_timeout"`
	QueryTimeout   string `yaml:"query_timeout,omitempty" mapstructure:"query_timeout"`
}

// Deployment controls how a pipeline is applied.
type Deployment struct {
	Pipeline   string `yaml:"pipeline,omitempty" mapstructure:"pipeline"`
	Target     string `yaml:"target" mapstructure:"target"`
	DuckDBPath string `yaml:"duckdb_path,omitempty" mapstructure:"duckdb_path"`
	Validate   bool   `yaml:"validate" mapstructure:"validate"`
	Confirm    bool   `yaml:"confirm" mapstructure:"confirm"`
}

// History configures where deployment records are kept.
type History struct {
	Dir           string `yaml:"dir,omitempty" mapstructure:"dir"`
	MaxRecords    int    `yaml:"max_records" mapstructure:"max_records"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
}

type Keygen struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	Bits int    `yaml:"bits" mapstructure:"bits"`
}

type Log struct {
	File  string `yaml:"file,omitempty" mapstructure:"file"`
	Level string `yaml:"level" mapstructure:"level"`
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	out := c
	if out.Snowflake.Password != "" {
		out.Snowflake.Password = Mask
	}
	if out.Snowflake.PrivateKey != "" {
		out.Snowflake.PrivateKey = Mask
	}
	return out
}

// Mask replaces secret values in printed configuration.
const Mask = "********"
