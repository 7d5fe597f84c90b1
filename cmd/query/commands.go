package query

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/ValentinKolb/dbpool/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

// --------------------------------------------------------------------------
// Output types
// --------------------------------------------------------------------------

// Entry is the outcome of a lookup for one key
type Entry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	Found bool   `json:"found" yaml:"found"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (e Entry) String() string {
	switch {
	case e.Error != "":
		return fmt.Sprintf("key=%s, error=%s", e.Key, e.Error)
	case !e.Found:
		return fmt.Sprintf("key=%s, found=false", e.Key)
	default:
		return fmt.Sprintf("key=%s, found=true, value=%s", e.Key, e.Value)
	}
}

// Entries is printed one entry per line in text mode
type Entries []Entry

func (es Entries) String() string {
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Ack is printed for writes
type Ack struct {
	Op  string `json:"op" yaml:"op"`
	Map string `json:"map" yaml:"map"`
	Key string `json:"key" yaml:"key"`
}

func (a Ack) String() string {
	return fmt.Sprintf("%s %s/%s successfully", a.Op, a.Map, a.Key)
}

// entryOf converts a lookup result. The value is copied, the handle is
// released.
func entryOf(key []byte, r db.Result) Entry {
	e := Entry{Key: string(key)}
	switch {
	case r.Found():
		e.Found = true
		e.Value = r.Handle.String()
		_ = r.Handle.Release()
	case errors.Is(r.Err, db.ErrNotFound):
	default:
		e.Error = r.Err.Error()
	}
	return e
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

var (
	getCmd = &cobra.Command{
		Use:   "get [map] [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(func(ctx context.Context, d *store.Database) (any, error) {
				m, err := d.Map(args[0])
				if err != nil {
					return nil, err
				}
				key := []byte(args[1])
				h, err := m.Get(ctx, key)
				if err != nil && !errors.Is(err, db.ErrNotFound) {
					return nil, err
				}
				return entryOf(key, db.Result{Handle: h, Err: err}), nil
			})
		},
	}
	batchCmd = &cobra.Command{
		Use:   "batch [map] [key]...",
		Short: "Reads the values for several keys with a single command",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(func(ctx context.Context, d *store.Database) (any, error) {
				m, err := d.Map(args[0])
				if err != nil {
					return nil, err
				}
				keys := make([][]byte, len(args)-1)
				for i, k := range args[1:] {
					keys[i] = []byte(k)
				}
				results, err := m.GetBatch(ctx, keys)
				if err != nil {
					return nil, err
				}
				out := make(Entries, len(results))
				for i, r := range results {
					out[i] = entryOf(keys[i], r)
				}
				return out, nil
			})
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [map]",
		Short: "Lists the entries of a map in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := db.Forward
			if viper.GetBool("reverse") {
				dir = db.Reverse
			}
			var from []byte
			if f := viper.GetString("from"); f != "" {
				from = []byte(f)
			}
			limit := viper.GetInt("limit")

			return runQuery(func(ctx context.Context, d *store.Database) (any, error) {
				m, err := d.Map(args[0])
				if err != nil {
					return nil, err
				}
				return scan(ctx, m, dir, from, limit)
			})
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [map] [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(func(_ context.Context, d *store.Database) (any, error) {
				m, err := d.Map(args[0])
				if err != nil {
					return nil, err
				}
				if err := m.Put([]byte(args[1]), []byte(args[2])); err != nil {
					return nil, err
				}
				return Ack{Op: "put", Map: args[0], Key: args[1]}, nil
			})
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [map] [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(func(_ context.Context, d *store.Database) (any, error) {
				m, err := d.Map(args[0])
				if err != nil {
					return nil, err
				}
				if err := m.Delete([]byte(args[1])); err != nil {
					return nil, err
				}
				return Ack{Op: "delete", Map: args[0], Key: args[1]}, nil
			})
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the state of the pool and the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prometheus := viper.GetBool("prometheus")
			return runQuery(func(_ context.Context, d *store.Database) (any, error) {
				if prometheus {
					var sb strings.Builder
					d.Pool().WritePrometheus(&sb)
					return promText(sb.String()), nil
				}
				return d.Stats(), nil
			})
		},
	}
)

// promText is printed as is in text mode, json and yaml encode it as a string
type promText string

func (p promText) String() string { return strings.TrimRight(string(p), "\n") }

func init() {
	scanCmd.Flags().String("from", "", "Start key (default: first or last key)")
	scanCmd.Flags().Bool("reverse", false, "Iterate in descending key order")
	scanCmd.Flags().Int("limit", 100, "Maximum number of entries (0 = no limit)")

	statsCmd.Flags().Bool("prometheus", false, "Print the pool metrics in Prometheus text format")
}

// scan seeks through the pool and collects up to limit entries
func scan(ctx context.Context, m *store.Map, dir db.Direction, from []byte, limit int) (Entries, error) {
	it, err := m.Seek(ctx, dir, from)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := Entries{}
	for ; it.Valid() && (limit <= 0 || len(out) < limit); it.Next() {
		out = append(out, Entry{Key: string(it.Key()), Value: string(it.Value()), Found: true})
	}
	return out, it.Error()
}
