package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/spec-kit/picto-request-service/internal/domain"
)

const maxPerPage = 100

// GitLabClient implements Client against a GitLab project.
type GitLabClient struct {
	client  *gitlab.Client
	project string
}

// NewGitLabClient builds a client for project (id or "group/path").
// baseURL may be empty for gitlab.com.
func NewGitLabClient(baseURL, token, project string) (*GitLabClient, error) {
	var (
		client *gitlab.Client
		err    error
	)
	if baseURL == "" {
		client, err = gitlab.NewClient(token)
	} else {
		apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	}
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabClient{client: client, project: project}, nil
}

func (c *GitLabClient) CreateIssue(ctx context.Context, kind domain.ReportType, title, body string) (*CreatedIssue, error) {
	labels := gitlab.LabelOptions{string(kind)}
	issue, _, err := c.client.Issues.CreateIssue(c.project, &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(title),
		Description: gitlab.Ptr(body),
		Labels:      &labels,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating issue on gitlab: %w", err)
	}
	return &CreatedIssue{ExternalID: int64(issue.IID), URL: issue.WebURL}, nil
}

func (c *GitLabClient) ListIssues(ctx context.Context, kind domain.ReportType, limit int) ([]domain.Report, error) {
	labels := gitlab.LabelOptions{string(kind)}
	issues, _, err := c.client.Issues.ListProjectIssues(c.project, &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: maxPerPage},
		Labels:      &labels,
		State:       gitlab.Ptr("all"),
		OrderBy:     gitlab.Ptr("created_at"),
		Sort:        gitlab.Ptr("desc"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing %s issues from gitlab: %w", kind, err)
	}
	return capReports(mapIssues(issues), limit), nil
}

func (c *GitLabClient) ListClosedMentioning(ctx context.Context, text string, limit int) ([]domain.Report, error) {
	issues, _, err := c.client.Issues.ListProjectIssues(c.project, &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: maxPerPage},
		State:       gitlab.Ptr("closed"),
		Search:      gitlab.Ptr(text),
		In:          gitlab.Ptr("description"),
		OrderBy:     gitlab.Ptr("updated_at"),
		Sort:        gitlab.Ptr("desc"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("searching closed issues on gitlab: %w", err)
	}
	return capReports(mapIssues(issues), limit), nil
}

func (c *GitLabClient) LastNote(ctx context.Context, externalID int64) (string, error) {
	notes, _, err := c.client.Notes.ListIssueNotes(c.project, int(externalID), &gitlab.ListIssueNotesOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: 20},
		OrderBy:     gitlab.Ptr("created_at"),
		Sort:        gitlab.Ptr("desc"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching notes from gitlab: %w", err)
	}
	for _, n := range notes {
		// system notes are state changes such as "closed", not discussion
		if n == nil || n.System {
			continue
		}
		return n.Body, nil
	}
	return "", nil
}

func mapIssues(issues []*gitlab.Issue) []domain.Report {
	reports := make([]domain.Report, 0, len(issues))
	for _, issue := range issues {
		if issue == nil {
			continue
		}
		reports = append(reports, mapIssue(issue))
	}
	return reports
}

func mapIssue(issue *gitlab.Issue) domain.Report {
	report := domain.Report{
		ExternalID: int64(issue.IID),
		Type:       reportTypeFromLabels(issue.Labels),
		Title:      issue.Title,
		State:      domain.ReportOpen,
		URL:        issue.WebURL,
	}
	if issue.State == "closed" {
		report.State = domain.ReportClosed
	}
	if reporter, ok := ExtractReporter(issue.Description); ok {
		report.Reporter = reporter
	}
	if issue.CreatedAt != nil {
		report.CreatedAt = *issue.CreatedAt
	}
	if issue.ClosedAt != nil {
		closedAt := time.Time(*issue.ClosedAt)
		report.ClosedAt = &closedAt
	}
	return report
}

func capReports(reports []domain.Report, limit int) []domain.Report {
	if limit > 0 && len(reports) > limit {
		return reports[:limit]
	}
	return reports
}

func reportTypeFromLabels(labels []string) domain.ReportType {
	for _, l := range labels {
		if t := domain.ReportType(strings.ToLower(l)); t.Valid() {
			return t
		}
	}
	return domain.ReportBug
}
