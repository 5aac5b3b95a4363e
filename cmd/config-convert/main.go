// Command config-convert copies a YAML configuration into a SQLite database
// so runtime adjustments made through the management API survive restarts.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boxboy523/inzi/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s (use -force to overwrite)\n", *sqliteFile)
		os.Exit(1)
	}

	yamlPath, _ := filepath.Abs(*yamlFile)
	provider := config.NewYAMLProvider(yamlPath)
	cfg, err := provider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load YAML config: %v\n", err)
		os.Exit(1)
	}

	sqlitePath, _ := filepath.Abs(*sqliteFile)
	target, err := config.NewSQLiteProvider(sqlitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer target.Close()

	if err := target.ImportConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to import configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s to %s\n", yamlPath, sqlitePath)
	fmt.Printf("  gauge: %s\n", gaugeTarget(cfg))
	fmt.Printf("  machines: %d\n", len(cfg.Machines))
	fmt.Println("Run the daemon with: -config-backend sqlite -config " + sqlitePath)
}

func gaugeTarget(cfg *config.ConfigData) string {
	if cfg.Gauge.SerialDevice != "" {
		return cfg.Gauge.SerialDevice
	}
	return cfg.Gauge.Hostname + ":" + cfg.Gauge.Port
}
