// internal/service/payment/infrastructure/cel_policy.go
package infrastructure

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"washa/internal/service/payment/domain/port"
)

// CELReconcilePolicy 是 port.ReconcilePolicy 接口的 CEL 实现。
//
// 准入规则是一个运行期配置的 CEL 表达式，例如：
//
//	amount <= 1000000.0 && age_seconds < 172800
//
// 表达式对 ReconcileFact 求值，返回 true 表示允许工作进程自动处置，
// false 表示转入人工审核。运营可以在配置中心收紧口径而无需发版。
type CELReconcilePolicy struct {
	program cel.Program
}

// NewCELReconcilePolicy 编译表达式并做类型检查。
func NewCELReconcilePolicy(expression string) (*CELReconcilePolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("correlation_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("age_seconds", cel.IntType),
		cel.Variable("state", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid reconcile policy expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("reconcile policy must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build cel program: %w", err)
	}
	return &CELReconcilePolicy{program: program}, nil
}

// AllowAutoResolve 对一笔待对账的尝试求值。
func (p *CELReconcilePolicy) AllowAutoResolve(_ context.Context, fact port.ReconcileFact) (bool, error) {
	out, _, err := p.program.Eval(map[string]interface{}{
		"correlation_id": fact.CorrelationID,
		"amount":         fact.Amount,
		"age_seconds":    fact.AgeSeconds,
		"state":          fact.State,
	})
	if err != nil {
		return false, fmt.Errorf("reconcile policy evaluation failed: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from policy: %T", out.Value())
	}
	return allowed, nil
}
