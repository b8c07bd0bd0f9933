// Command schema-export compiles the model and schema files without a
// database and prints or checks the resulting GraphQL schema.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/ast"

	"content-graphql/internal/config"
	"content-graphql/internal/logging"
	"content-graphql/internal/schema"
	"content-graphql/internal/serverapp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schema-export",
		Short: "Compile content models into a GraphQL schema",
		Long: `schema-export loads the model directory, plugin schemas and the user schema
file named by the server configuration and compiles them exactly as the
server would, without connecting to a database.

Examples:
  schema-export print --graphql.models_dir models > schema.graphql
  schema-export check -c content-graphql.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	var out string
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the compiled SDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			art, err := compile(cmd)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), art.TypeDefs)
				return err
			}
			return os.WriteFile(out, []byte(art.TypeDefs), 0o644)
		},
	}
	printCmd.Flags().StringVarP(&out, "out", "o", "", "Write the SDL to this file instead of stdout")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Compile the schema and report a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			art, err := compile(cmd)
			if err != nil {
				return err
			}
			writeSummary(cmd.OutOrStdout(), art)
			return nil
		},
	}

	root.AddCommand(printCmd, checkCmd)
	return root
}

// compile loads the configuration from the command flags and builds the
// schema with resolvers that report the backend as unavailable.
func compile(cmd *cobra.Command) (*schema.Artifact, error) {
	cfg, err := config.LoadFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := validate(cmd.ErrOrStderr(), cfg); err != nil {
		return nil, err
	}
	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	return serverapp.CompileSchema(cmd.Context(), cfg, serverapp.CompileOptions{Logger: logger})
}

// compileSections are the configuration sections a schema build reads.
var compileSections = []string{"graphql.", "permissions.", "schema_filters.", "naming."}

func affectsCompile(field string) bool {
	for _, prefix := range compileSections {
		if strings.HasPrefix(field, prefix) {
			return true
		}
	}
	return false
}

// validate reports configuration problems of the compile sections. Database,
// server and observability settings are not needed here.
func validate(w io.Writer, cfg *config.Config) error {
	result := cfg.Validate()
	warn := color.New(color.FgYellow)
	for _, wv := range result.Warnings {
		if affectsCompile(wv.Field) {
			warn.Fprintf(w, "warning: %s: %s\n", wv.Field, wv.Message)
		}
	}
	failed := 0
	bad := color.New(color.FgRed)
	for _, ev := range result.Errors {
		if affectsCompile(ev.Field) {
			bad.Fprintf(w, "error: %s: %s\n", ev.Field, ev.Message)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("configuration validation failed: %d error(s)", failed)
	}
	return nil
}

func writeSummary(w io.Writer, art *schema.Artifact) {
	color.New(color.FgGreen).Fprintln(w, "schema compiled")

	var types []string
	for name, def := range art.Schema.Types {
		if def.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		types = append(types, name)
	}
	sort.Strings(types)
	fmt.Fprintf(w, "types:     %d\n", len(types))
	fmt.Fprintf(w, "queries:   %s\n", fieldNames(art.Schema.Query))
	fmt.Fprintf(w, "mutations: %s\n", fieldNames(art.Schema.Mutation))
}

func fieldNames(def *ast.Definition) string {
	if def == nil {
		return "-"
	}
	names := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		return "-"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
