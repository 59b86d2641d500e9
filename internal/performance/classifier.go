// Package performance classifies transactions against spend-tier
// performance rules and tracks tier progress.
package performance

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/cardlens/cardlens/internal/domain"
)

// ExclusionRule is an issuer-specific predicate that removes a
// transaction from performance counting. The expression is CEL and
// must evaluate to bool.
type ExclusionRule struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Reason     string `json:"reason"`
	Enabled    bool   `json:"enabled"`
}

type compiledExclusion struct {
	rule    ExclusionRule
	program cel.Program
}

// Classifier decides whether a transaction counts toward spend-tier
// performance. Cancelled transactions never count; beyond that,
// issuer exclusion rules are applied in load order.
type Classifier struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []compiledExclusion
}

// NewClassifier creates a classifier with the given exclusion rules.
func NewClassifier(exclusions []ExclusionRule) (*Classifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.IntType),
		cel.Variable("merchant_name", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("offline", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	c := &Classifier{env: env}
	for _, ex := range exclusions {
		if !ex.Enabled {
			continue
		}
		if err := c.LoadExclusion(ex); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadExclusion compiles and appends an exclusion rule.
func (c *Classifier) LoadExclusion(ex ExclusionRule) error {
	ast, issues := c.env.Compile(ex.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile exclusion %s: %w", ex.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("exclusion %s: expression must return bool, got %s", ex.ID, ast.OutputType())
	}
	program, err := c.env.Program(ast)
	if err != nil {
		return fmt.Errorf("failed to create program for exclusion %s: %w", ex.ID, err)
	}

	c.mu.Lock()
	c.compiled = append(c.compiled, compiledExclusion{rule: ex, program: program})
	c.mu.Unlock()
	return nil
}

// ExclusionCount returns the number of loaded exclusion rules.
func (c *Classifier) ExclusionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.compiled)
}

// Classify returns the performance classification for a transaction.
// A cancelled or excluded transaction carries PerformanceAmount 0.
func (c *Classifier) Classify(tx *domain.Transaction) *domain.PerformanceClassification {
	out := &domain.PerformanceClassification{
		TransactionID: tx.ID,
		CardID:        tx.CardID,
		ClassifiedAt:  time.Now().UTC(),
	}

	if tx.Status == domain.StatusCancelled {
		out.Counted = false
		out.Reason = "cancelled"
		return out
	}

	activation := map[string]any{
		"amount":            tx.Amount,
		"merchant_name":     tx.MerchantName,
		"merchant_category": tx.MerchantCategory,
		"offline":           tx.Offline,
	}

	c.mu.RLock()
	compiled := c.compiled
	c.mu.RUnlock()

	for _, ex := range compiled {
		val, _, err := ex.program.Eval(activation)
		if err != nil {
			// An exclusion that cannot evaluate must not silently
			// drop the transaction from performance.
			continue
		}
		if b, ok := val.(types.Bool); ok && bool(b) {
			out.Counted = false
			out.Reason = ex.rule.Reason
			return out
		}
	}

	out.Counted = true
	out.PerformanceAmount = tx.Amount
	return out
}
