package engine

import (
	"fmt"
	"log/slog"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"factory-cell-controller/internal/types"
)

// Rule 是可配置的准入规则 (expr 语法)，例如 "cook_time <= 30 && color != 'blue'"
// 规则为空时总是放行
type Rule struct {
	source  string
	program *vm.Program
}

func ruleEnv(job *types.Job) map[string]interface{} {
	return map[string]interface{}{
		"job_id":    job.JobID,
		"order_id":  job.OrderID,
		"color":     string(job.Color),
		"cook_time": job.CookTime,
		"sliced":    job.Sliced,
	}
}

// NewRule 编译准入规则
func NewRule(source string) (*Rule, error) {
	r := &Rule{source: source}
	if source == "" {
		return r, nil
	}
	program, err := expr.Compile(source, expr.Env(ruleEnv(&types.Job{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("rule compilation failed: %w", err)
	}
	r.program = program
	return r, nil
}

// Allows 对任务求值
func (r *Rule) Allows(job *types.Job) (bool, error) {
	if r == nil || r.program == nil {
		return true, nil
	}
	result, err := expr.Run(r.program, ruleEnv(job))
	if err != nil {
		return false, fmt.Errorf("rule execution failed: %w", err)
	}
	allowed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("rule result is not a boolean")
	}
	return allowed, nil
}

func (r *Rule) String() string { return r.source }

// gate 在库存判断之外再叠加准入规则
type gate struct {
	stock  Stock
	rule   *Rule
	logger *slog.Logger
}

// Gate 返回同时检查库存和准入规则的 Stock
func Gate(stock Stock, rule *Rule, logger *slog.Logger) Stock {
	if rule == nil || rule.program == nil {
		return stock
	}
	return &gate{stock: stock, rule: rule, logger: logger}
}

func (g *gate) Satisfies(job *types.Job) bool {
	if !g.stock.Satisfies(job) {
		return false
	}
	allowed, err := g.rule.Allows(job)
	if err != nil {
		g.logger.Error("规则引擎评估失败", "error", err, "rule", g.rule.source, "job_id", job.JobID)
		return false
	}
	return allowed
}
