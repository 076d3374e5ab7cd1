package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Bibi40k/vmgmt/configs"
	"github.com/Bibi40k/vmgmt/pkg/inventory"
	"github.com/Bibi40k/vmgmt/pkg/provider"
	"github.com/Bibi40k/vmgmt/pkg/statlog"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/wait"
)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(defaultOptions())
}

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "vmgmt",
		Short:         "Inspect and operate VMs across vSphere, Proxmox, libvirt and containerd",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initDebugLogger(opts.debug)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.providersFile, "providers", configs.Defaults.Output.ProvidersPath,
		"Path to providers file (*.sops.yaml is decrypted with sops)")
	pf.StringVarP(&opts.provider, "provider", "p", "", "Provider name (prompted when omitted)")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging to "+debugLogPath)
	pf.DurationVar(&opts.timeout, "timeout", configs.Defaults.Timeouts.Request(), "Timeout for each command")

	root.AddCommand(
		newProvidersCmd(opts),
		newInfoCmd(opts),
		newListCmd(opts),
		newStateCmd(opts),
		newPowerCmd(opts, "start", "Start a VM", system.StateRunning,
			func(ctx context.Context, s system.System, name string) error { return s.StartVM(ctx, name) }),
		newPowerCmd(opts, "stop", "Stop a VM", system.StateStopped,
			func(ctx context.Context, s system.System, name string) error { return s.StopVM(ctx, name) }),
		newPowerCmd(opts, "suspend", "Suspend a VM (if the backend supports it)", "", system.SuspendVM),
		newPowerCmd(opts, "restart", "Restart a running VM (if the backend supports it)", "", system.RestartVM),
		newStatsCmd(opts),
		newInventoryCmd(opts),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newProvidersCmd(opts *options) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the providers defined in the providers file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.loadProviders()
			if err != nil {
				return err
			}
			headers := []string{"NAME", "KIND", "ENDPOINT", "USER"}
			if check {
				headers = append(headers, "PORT")
			}
			dialTimeout := configs.Defaults.Timeouts.Connect()
			if opts.timeout > 0 && opts.timeout < dialTimeout {
				dialTimeout = opts.timeout
			}
			rows := make([][]string, 0, len(f.Providers))
			for _, p := range f.Providers {
				endpoint := p.Endpoint
				if endpoint == "" {
					endpoint = "-"
				}
				row := []string{p.Name, p.Kind, endpoint, p.Username}
				if check {
					row = append(row, p.Reachable(dialTimeout))
				}
				rows = append(rows, row)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(headers, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Probe each TCP endpoint and report whether its port is open")
	return cmd
}

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show a description of the provider's management system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSystem(cmd, 0, func(ctx context.Context, p provider.Provider, s system.System) error {
				info, err := s.Info(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p.Name, info)
				return nil
			})
		},
	}
}

var listKinds = map[string]func(system.System) func(context.Context) ([]string, error){
	"templates":  func(s system.System) func(context.Context) ([]string, error) { return s.ListTemplates },
	"hosts":      func(s system.System) func(context.Context) ([]string, error) { return s.ListHosts },
	"clusters":   func(s system.System) func(context.Context) ([]string, error) { return s.ListClusters },
	"datastores": func(s system.System) func(context.Context) ([]string, error) { return s.ListDatastores },
}

func newListCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:       "list [vms|templates|hosts|clusters|datastores]",
		Short:     "List VMs (with state) or another resource kind",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"vms", "templates", "hosts", "clusters", "datastores"},
		RunE: func(cmd *cobra.Command, args []string) error {
			what := "vms"
			if len(args) == 1 {
				what = args[0]
			}
			return opts.withSystem(cmd, 0, func(ctx context.Context, p provider.Provider, s system.System) error {
				out := cmd.OutOrStdout()
				if what == "vms" {
					vms, err := system.ListVMStates(ctx, s)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(out, vms)
					}
					rows := make([][]string, 0, len(vms))
					for _, vm := range vms {
						rows = append(rows, []string{vm.Name, string(vm.State)})
					}
					fmt.Fprint(out, renderTable([]string{"NAME", "STATE"}, rows, func(col int, v string) lipgloss.Style {
						if col == 1 {
							return stateStyle(system.State(v))
						}
						return normalStyle
					}))
					return nil
				}

				items, err := listKinds[what](s)(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, items)
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					rows = append(rows, []string{it})
				}
				fmt.Fprint(out, renderTable([]string{strings.ToUpper(strings.TrimSuffix(what, "s"))}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "state NAME",
		Short: "Show the normalized state of a VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSystem(cmd, 0, func(ctx context.Context, p provider.Provider, s system.System) error {
				st, err := s.VMState(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

type powerFunc func(ctx context.Context, s system.System, name string) error

// newPowerCmd builds a VM action command. A non-empty target enables
// --wait, which polls until the VM reports target.
func newPowerCmd(opts *options, use, short string, target system.State, action powerFunc) *cobra.Command {
	var (
		waitFor     bool
		waitTimeout time.Duration
		waitDelay   time.Duration
	)
	cmd := &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			extra := time.Duration(0)
			if waitFor {
				extra = waitTimeout
			}
			return opts.withSystem(cmd, extra, func(ctx context.Context, p provider.Provider, s system.System) error {
				logger := opts.logger()
				logger.Info("Requesting "+use, "provider", p.Name, "vm", name)
				if err := action(ctx, s, name); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !waitFor {
					fmt.Fprintf(out, "%s: %s requested\n", name, use)
					return nil
				}
				res, err := system.WaitForState(ctx, s, name, target, wait.Options{
					Timeout: waitTimeout,
					Delay:   waitDelay,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s after %d polls (%s)\n", name, target, res.Polls, res.Elapsed.Round(time.Millisecond))
				return nil
			})
		},
	}
	if target != "" {
		cmd.Flags().BoolVar(&waitFor, "wait", false, fmt.Sprintf("Wait until the VM is %s", target))
		cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", configs.Defaults.Timeouts.Wait(), "Maximum time to wait")
		cmd.Flags().DurationVar(&waitDelay, "wait-delay", configs.Defaults.Timeouts.WaitDelay(), "Delay between state polls")
	}
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	var (
		record  bool
		history string
		limit   int
		dbPath  string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "stats [NAME...]",
		Short: "Compute stats live, optionally recording them, or show recorded history",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if history != "" {
				p, err := opts.resolveProvider()
				if err != nil {
					return err
				}
				store, err := statlog.Open(dbPath, opts.logger())
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				samples, err := store.History(cmd.Context(), p.Name, history, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, samples)
				}
				rows := make([][]string, 0, len(samples))
				for _, sm := range samples {
					rows = append(rows, []string{sm.RecordedAt.Local().Format(time.DateTime), formatStat(sm.Value)})
				}
				fmt.Fprint(out, renderTable([]string{"RECORDED", strings.ToUpper(history)}, rows, nil))
				return nil
			}

			return opts.withSystem(cmd, 0, func(ctx context.Context, p provider.Provider, s system.System) error {
				stats, err := system.CollectStats(ctx, s, args...)
				if err != nil {
					return err
				}
				if record {
					store, err := statlog.Open(dbPath, opts.logger())
					if err != nil {
						return err
					}
					defer func() { _ = store.Close() }()
					if err := store.Record(ctx, p.Name, stats); err != nil {
						return err
					}
					opts.logger().Info("Recorded stats", "provider", p.Name, "path", dbPath)
				}
				if asJSON {
					return writeJSON(out, stats)
				}
				names := make([]string, 0, len(stats))
				for name := range stats {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, formatStat(stats[name])})
				}
				fmt.Fprint(out, renderTable([]string{"STAT", "VALUE"}, rows, nil))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&record, "record", false, "Store the computed stats in the history database")
	f.StringVar(&history, "history", "", "Show recorded history of one stat instead of computing")
	f.IntVar(&limit, "limit", configs.Defaults.Stats.HistoryLimit, "Maximum history rows")
	f.StringVar(&dbPath, "db", configs.Defaults.Stats.HistoryPath, "Stats history database")
	f.BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.MarkFlagsMutuallyExclusive("record", "history")
	return cmd
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newInventoryCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Collect a full inventory snapshot (YAML or JSON by --output extension)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSystem(cmd, 0, func(ctx context.Context, p provider.Provider, s system.System) error {
				snap, err := inventory.Collect(ctx, p.Name, s)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s): %s\n", snap.Provider, snap.Kind, snap.Info)
				fmt.Fprintf(out, "  vms=%d running=%d templates=%d hosts=%d clusters=%d datastores=%d\n",
					len(snap.VMs), snap.Running(), len(snap.Templates), len(snap.Hosts),
					len(snap.Clusters), len(snap.Datastores))
				if len(snap.Unsupported) > 0 {
					fmt.Fprintf(out, "  unsupported: %s\n", strings.Join(snap.Unsupported, ", "))
				}
				if output == "" {
					return nil
				}
				if err := inventory.Save(output, snap); err != nil {
					return err
				}
				fmt.Fprintf(out, "  saved: %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the snapshot to this file (.yaml or .json)")
	cmd.Flags().Lookup("output").NoOptDefVal = configs.Defaults.Output.InventoryPath
	return cmd
}
