package main

import (
	"github.com/awnumar/memguard"
	cli "github.com/urfave/cli/v2"
)

// runProxyCommand handles the "proxy" subcommand.
func runProxyCommand(c *cli.Context) error {
	cfg, err := buildProxyConfig(c)
	if err != nil {
		return err
	}
	return runProxy(cfg)
}

// runServeCommand handles the default action: proxy and keep-alive emulator
// side by side, the usual router deployment.
func runServeCommand(c *cli.Context) error {
	cfg, err := buildProxyConfig(c)
	if err != nil {
		return err
	}
	errc := make(chan error, 2)
	go func() { errc <- runProxy(cfg) }()
	go func() { errc <- runKeepAlive(c.String("keepalive-listen")) }()
	return <-errc
}

// proxyConfig is the read-only runtime configuration shared by every
// connection pair.
type proxyConfig struct {
	listen      string
	key         *memguard.LockedBuffer
	rules       *ruleStore
	ruleLoader  ruleLoader
	watchReload bool
}

// buildProxyConfig validates flags and assembles the proxy runtime
// configuration. All failures here are fatal before any connection is served.
func buildProxyConfig(c *cli.Context) (*proxyConfig, error) {
	if err := setupLogging(c.String("log-file")); err != nil {
		return nil, err
	}
	configPath := c.String("rules-config")
	defaults := defaultRules(c)
	if configPath == "" && len(defaults) == 0 {
		return nil, exitWithExample("proxy requires --advertise or --rules-config", exampleProxy)
	}
	loader := func() (ruleSet, error) {
		return loadRuleSetFromSources(defaults, configPath)
	}
	rules, err := loader()
	if err != nil {
		return nil, err
	}
	key, err := resolveLocalKey(c)
	if err != nil {
		return nil, exitWithExample(err.Error(), exampleProxy)
	}
	return &proxyConfig{
		listen:      c.String("listen"),
		key:         key,
		rules:       newRuleStore(rules),
		ruleLoader:  loader,
		watchReload: configPath != "",
	}, nil
}

// runKeepAliveCommand handles the "keepalive" subcommand.
func runKeepAliveCommand(c *cli.Context) error {
	if err := setupLogging(c.String("log-file")); err != nil {
		return err
	}
	return runKeepAlive(c.String("listen"))
}
