package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/awnumar/memguard"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// rulesConfigFile represents the structure of the JSON interception rules file
type rulesConfigFile struct {
	Rules []interceptRule `json:"rules"`
}

// loadRulesFromConfig reads and parses the interception rules file
func loadRulesFromConfig(path string) ([]interceptRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg rulesConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("config %s does not list any rules", path)
	}
	rules := make([]interceptRule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		rule.Method = strings.TrimSpace(rule.Method)
		rule.URL = strings.TrimSpace(rule.URL)
		if rule.Method == "" || rule.URL == "" {
			return nil, fmt.Errorf("config %s contains a rule with empty method or url", path)
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Method < rules[j].Method })
	return rules, nil
}

// loadRuleSetFromSources combines the CLI-derived default rule with the rules
// file, file entries winning on method collisions.
func loadRuleSetFromSources(defaults []interceptRule, configPath string) (ruleSet, error) {
	combined := append([]interceptRule(nil), defaults...)
	if configPath != "" {
		fileRules, err := loadRulesFromConfig(configPath)
		if err != nil {
			return nil, err
		}
		combined = append(combined, fileRules...)
	}
	if len(combined) == 0 {
		return nil, errors.New("no interception rules configured")
	}
	set := make(ruleSet, len(combined))
	for _, rule := range combined {
		set[rule.Method] = rule
	}
	return set, nil
}

// defaultRules builds the get_turn_server rule from CLI flags. An empty
// advertise address yields no default rule; a rules file must then supply one.
func defaultRules(c *cli.Context) []interceptRule {
	advertise := c.String("advertise")
	if advertise == "" {
		return nil
	}
	return []interceptRule{{
		Method: interceptedMethod,
		URL:    fmt.Sprintf("turn:%s:%d", advertise, c.Int("turn-port")),
		User:   c.String("turn-user"),
		Pwd:    c.String("turn-pwd"),
	}}
}

// resolveLocalKey obtains the per-device key from the flag or environment,
// falling back to an interactive prompt when attached to a terminal. The key
// lives in locked memory for the life of the process.
func resolveLocalKey(c *cli.Context) (*memguard.LockedBuffer, error) {
	if key := c.String("key"); key != "" {
		return memguard.NewBufferFromBytes([]byte(key)), nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("device local key required (set --key or ROBOROCK_LOCAL_KEY)")
	}
	fmt.Fprint(os.Stderr, "Enter device local key: ")
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("empty local key")
	}
	return memguard.NewBufferFromBytes(key), nil
}

// setupLogging mirrors log output to a file when requested, for router
// deployments where stdout is lost after the SSH session ends.
func setupLogging(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return nil
}
