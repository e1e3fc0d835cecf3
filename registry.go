package main

import (
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// interceptRule binds an RPC method name to the relay parameters forged into
// its reply.
type interceptRule struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	User   string `json:"user"`
	Pwd    string `json:"pwd"`
}

// ruleSet maps intercepted method names onto their rules.
type ruleSet map[string]interceptRule

// ruleLoader defines a function that loads a rule set.
type ruleLoader func() (ruleSet, error)

// ruleStore provides atomic access to the active rule set. Lookups happen on
// every decoded RPC frame across all connections; replacement only on reload.
type ruleStore struct {
	value atomic.Value
}

// newRuleStore creates a ruleStore initialized with rules.
func newRuleStore(rules ruleSet) *ruleStore {
	store := &ruleStore{}
	store.value.Store(rules)
	return store
}

// Get retrieves the current rule set.
func (s *ruleStore) Get() ruleSet {
	rules, _ := s.value.Load().(ruleSet)
	return rules
}

// Replace updates the rule set with rules.
func (s *ruleStore) Replace(rules ruleSet) {
	s.value.Store(rules)
}

// watchRulesReload listens for SIGUSR1 and reloads the interception rules.
func watchRulesReload(store *ruleStore, loader ruleLoader) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)
	for range sigCh {
		log.Printf("received SIGUSR1, reloading interception rules")
		rules, err := loader()
		if err != nil {
			log.Printf("interception rules reload failed: %v", err)
			continue
		}
		store.Replace(rules)
		log.Printf("interception rules reloaded (%d methods)", len(rules))
	}
}
