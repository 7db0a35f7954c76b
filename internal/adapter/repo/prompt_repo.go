package repo

import (
	"context"
	"fmt"
	"strings"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
	"portraitgen/internal/sqlinline"
)

// PromptSourcePG resolves prompts from the quiz result's matched tribe.
type PromptSourcePG struct {
	sql infra.SQLExecutor
}

func NewPromptSource(sql infra.SQLExecutor) *PromptSourcePG {
	return &PromptSourcePG{sql: sql}
}

func (p *PromptSourcePG) PromptFor(ctx context.Context, resultID string) (string, error) {
	var prompt string
	if err := p.sql.QueryRow(ctx, sqlinline.QSelectPromptByResult, resultID).Scan(&prompt); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("lookup prompt: %w", err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.ErrPromptUnavailable
	}
	return prompt, nil
}

func (p *PromptSourcePG) ProfileFor(ctx context.Context, resultID string) (*domain.ProfileMatch, error) {
	var match domain.ProfileMatch
	if err := p.sql.QueryRow(ctx, sqlinline.QSelectProfileByResult, resultID).Scan(&match.ResultID, &match.TribeName); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	return &match, nil
}

// StaticPromptSource serves one prompt for every result; used with the memory ledger.
type StaticPromptSource struct {
	Prompt    string
	TribeName string
}

func (s StaticPromptSource) PromptFor(ctx context.Context, resultID string) (string, error) {
	if strings.TrimSpace(s.Prompt) == "" {
		return "", domain.ErrPromptUnavailable
	}
	return s.Prompt, nil
}

func (s StaticPromptSource) ProfileFor(ctx context.Context, resultID string) (*domain.ProfileMatch, error) {
	return &domain.ProfileMatch{ResultID: resultID, TribeName: s.TribeName}, nil
}

var (
	_ domain.PromptSource = (*PromptSourcePG)(nil)
	_ domain.PromptSource = StaticPromptSource{}
)
