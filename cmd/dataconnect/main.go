package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/backends"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/connector/query"
	"github.com/platewise/dataconnect/pkg/logger"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load() // .env is optional

	var configFile, connectorName, logLevel string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "dataconnect",
		Short: "Dataconnect - universal data connector framework",
		Long: `Dataconnect connects to heterogeneous data backends through one
uniform contract: connection management, schema discovery and
backend-agnostic queries for PostgreSQL, MySQL, MongoDB and Snowflake.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: logLevel})
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "connectors.yaml", "connector config file")
	root.PersistentFlags().StringVarP(&connectorName, "name", "n", "", "connector name within the config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall command deadline")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Dataconnect v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "types",
		Short: "List supported backend types",
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range backends.NewFactory().Supported() {
				fmt.Printf("  - %s\n", t)
			}
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Connect and run a connectivity probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnector(configFile, connectorName, timeout,
				func(ctx context.Context, conn core.Connector) error {
					result, err := conn.TestConnection(ctx)
					if err != nil {
						return err
					}
					return printJSON(result)
				})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "tables",
		Short: "List tables or collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnector(configFile, connectorName, timeout,
				func(ctx context.Context, conn core.Connector) error {
					tables, err := conn.ListTables(ctx)
					if err != nil {
						return err
					}
					for _, t := range tables {
						fmt.Println(t)
					}
					return nil
				})
		},
	})

	schemaCmd := &cobra.Command{
		Use:   "schema [table]",
		Short: "Discover the full schema, or describe one table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnector(configFile, connectorName, timeout,
				func(ctx context.Context, conn core.Connector) error {
					if len(args) == 1 {
						columns, err := conn.GetColumnInfo(ctx, args[0])
						if err != nil {
							return err
						}
						return printJSON(columns)
					}
					info, err := conn.DiscoverSchema(ctx)
					if err != nil {
						return err
					}
					return printJSON(info)
				})
		},
	}
	root.AddCommand(schemaCmd)

	var rawMode bool
	queryCmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Execute a query",
		Long: `Execute a query against the selected connector. By default the text
is parsed into the backend-agnostic query model; with --raw it is
passed to the backend verbatim.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnector(configFile, connectorName, timeout,
				func(ctx context.Context, conn core.Connector) error {
					var q *core.UniversalQuery
					if rawMode {
						raw := core.NewRawQuery(args[0])
						q = &raw
					} else {
						parsed, err := query.NewParser().Parse(args[0])
						if err != nil {
							return err
						}
						q = parsed
					}
					result, err := conn.ExecuteQuery(ctx, q)
					if err != nil {
						return err
					}
					return printJSON(result)
				})
		},
	}
	queryCmd.Flags().BoolVar(&rawMode, "raw", false, "send the query text to the backend unmodified")
	root.AddCommand(queryCmd)

	var previewLimit int
	previewCmd := &cobra.Command{
		Use:   "preview <table>",
		Short: "Sample rows from a table with completeness stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnector(configFile, connectorName, timeout,
				func(ctx context.Context, conn core.Connector) error {
					preview, err := conn.PreviewData(ctx, args[0], previewLimit)
					if err != nil {
						return err
					}
					return printJSON(preview)
				})
		},
	}
	previewCmd.Flags().IntVar(&previewLimit, "limit", 100, "maximum rows to sample")
	root.AddCommand(previewCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	_ = logger.Sync()
}

// withConnector loads the selected config, builds and connects the
// connector, runs fn, and always disconnects.
func withConnector(configFile, name string, timeout time.Duration, fn func(context.Context, core.Connector) error) error {
	cfg, err := selectConfig(configFile, name)
	if err != nil {
		return err
	}

	conn, err := backends.NewFactory().Create(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := conn.Disconnect(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: disconnect failed: %v\n", err)
		}
	}()

	return fn(ctx, conn)
}

// selectConfig picks one connector from the config file: by name when
// given, otherwise the file must define exactly one.
func selectConfig(path, name string) (*config.ConnectorConfig, error) {
	configs, err := config.LoadAll(path)
	if err != nil {
		return nil, err
	}

	if name == "" {
		if len(configs) == 1 {
			return configs[0], nil
		}
		return nil, fmt.Errorf("%s defines %d connectors; pick one with --name", path, len(configs))
	}

	for _, cfg := range configs {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("no connector named %q in %s", name, path)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
