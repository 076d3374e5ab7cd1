package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/Bibi40k/vmgmt/pkg/provider"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/systems/proxmox"
	"github.com/Bibi40k/vmgmt/pkg/systems/vsphere"
)

// options holds the global flags and the interactive hooks tests replace.
type options struct {
	providersFile string
	provider      string
	debug         bool
	timeout       time.Duration

	interactive func() bool
	pick        func(names []string) (string, error)
	password    func(label string) string
}

func defaultOptions() *options {
	return &options{
		interactive: isInteractive,
		pick:        surveyPick,
		password:    readPassword,
	}
}

func (o *options) logger() *slog.Logger {
	return getLogger(o.debug)
}

func (o *options) loadProviders() (*provider.File, error) {
	if provider.IsSOPS(o.providersFile) {
		if err := checkRequirements(); err != nil {
			return nil, err
		}
	}
	f, err := provider.Load(o.providersFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &userError{
				msg:  fmt.Sprintf("providers file not found: %s", o.providersFile),
				hint: "cp configs/providers.example.yaml configs/providers.yaml, or pass --providers",
				err:  err,
			}
		}
		return nil, err
	}
	if len(f.Providers) == 0 {
		return nil, &userError{
			msg:  fmt.Sprintf("no providers defined in %s", o.providersFile),
			hint: "Add at least one entry under 'providers:'",
		}
	}
	return f, nil
}

// selectProvider resolves --provider, the only defined provider, or asks.
func (o *options) selectProvider(f *provider.File) (provider.Provider, error) {
	if o.provider != "" {
		return f.Find(o.provider)
	}
	if len(f.Providers) == 1 {
		return f.Providers[0], nil
	}
	if !o.interactive() {
		return provider.Provider{}, &userError{
			msg:  "several providers are defined and none was selected",
			hint: "Pass --provider NAME (see 'vmgmt providers')",
		}
	}
	name, err := o.pick(f.Names())
	if err != nil {
		return provider.Provider{}, err
	}
	return f.Find(name)
}

func surveyPick(names []string) (string, error) {
	var choice string
	err := survey.AskOne(&survey.Select{
		Message: "Select provider:",
		Options: names,
	}, &choice)
	if errors.Is(err, terminal.InterruptErr) {
		return "", &userError{msg: "cancelled"}
	}
	return choice, err
}

// needsPassword reports whether p would try password auth with none set.
func needsPassword(p provider.Provider) bool {
	if p.Password != "" || p.Token != "" {
		return false
	}
	return p.Kind == vsphere.Kind || p.Kind == proxmox.Kind
}

// resolveProvider loads the providers file and picks one definition,
// prompting for a missing password on a terminal.
func (o *options) resolveProvider() (provider.Provider, error) {
	f, err := o.loadProviders()
	if err != nil {
		return provider.Provider{}, err
	}
	p, err := o.selectProvider(f)
	if err != nil {
		return provider.Provider{}, err
	}
	if needsPassword(p) && o.interactive() {
		p.Password = o.password(fmt.Sprintf("Password for %s@%s", p.Username, p.Endpoint))
	}
	return p, nil
}

type systemFunc func(ctx context.Context, p provider.Provider, s system.System) error

// withSystem connects to the selected provider, runs fn and disconnects.
// extra extends --timeout for commands that wait on VM state.
func (o *options) withSystem(cmd *cobra.Command, extra time.Duration, fn systemFunc) error {
	p, err := o.resolveProvider()
	if err != nil {
		return err
	}
	logger := o.logger()
	s, err := provider.New(p, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout+extra)
	defer cancel()

	logger.Debug("Connecting", "provider", p.Name, "system", p.Kind, "endpoint", p.Endpoint)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.Disconnect(context.Background()); err != nil {
			logger.Warn("Disconnect failed", "provider", p.Name, "error", err)
		}
	}()
	return fn(ctx, p, s)
}
