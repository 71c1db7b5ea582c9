// Package mail renders and sends recommendation emails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	domain "squad_recommender/internal/domain/mail"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	"squad_recommender/internal/infra/catalog"
)

var htmlTemplate = template.Must(template.New("mission").Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif;">
<p>Hi {{.Name}},</p>
<p>Here are today's practice problems for <strong>{{.Scope}}</strong> ({{.Date}}).</p>
{{if .Problems}}<ol>
{{range .Problems}}<li><a href="{{.URL}}">{{.ExternalID}}. {{.Title}}</a> <span style="color:#888;">[{{.Tier}}]</span></li>
{{end}}</ol>{{else}}<p>No new problems matched your squad's filters this time.</p>{{end}}
<p>Good luck!</p>
</body></html>`))

type problemView struct {
	ExternalID int
	Title      string
	Tier       string
	URL        string
}

type messageView struct {
	Name     string
	Scope    string
	Date     string
	Problems []problemView
}

// BatchReader loads a batch and its ordered problems.
type BatchReader interface {
	GetBatchByID(ctx context.Context, id int64) (*mission.Batch, error)
	ListBatchProblems(ctx context.Context, batchID int64) ([]mission.BatchProblem, error)
}

// TemplateComposer renders a batch's problems into an email for one member.
type TemplateComposer struct {
	batches          BatchReader
	problemURLFormat string
}

func NewTemplateComposer(batches BatchReader, problemURLFormat string) *TemplateComposer {
	return &TemplateComposer{batches: batches, problemURLFormat: problemURLFormat}
}

func (c *TemplateComposer) Build(ctx context.Context, d *mission.MemberDelivery, recipient *squad.Member) (*domain.Message, error) {
	batch, err := c.batches.GetBatchByID(ctx, d.BatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %d: %w", d.BatchID, err)
	}
	problems, err := c.batches.ListBatchProblems(ctx, d.BatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load problems of batch %d: %w", d.BatchID, err)
	}

	view := messageView{
		Name:     recipient.DisplayName,
		Scope:    batch.ScopeName,
		Date:     batch.CycleStart.Format("2006-01-02"),
		Problems: make([]problemView, 0, len(problems)),
	}
	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nToday's practice problems for %s (%s):\n\n", view.Name, view.Scope, view.Date)
	for _, p := range problems {
		pv := problemView{
			ExternalID: p.ExternalID,
			Title:      p.Title,
			Tier:       catalog.TierCode(p.Tier),
			URL:        fmt.Sprintf(c.problemURLFormat, p.ExternalID),
		}
		view.Problems = append(view.Problems, pv)
		fmt.Fprintf(&text, "%d. %d %s [%s] %s\n", p.Position, pv.ExternalID, pv.Title, pv.Tier, pv.URL)
	}
	if len(problems) == 0 {
		text.WriteString("No new problems matched your squad's filters this time.\n")
	}

	var html bytes.Buffer
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}

	return &domain.Message{
		To:       recipient.ContactAddress(),
		ToName:   recipient.DisplayName,
		Subject:  fmt.Sprintf("[%s] Practice problems for %s", batch.ScopeName, view.Date),
		HTMLBody: html.String(),
		TextBody: text.String(),
	}, nil
}
