package platformb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/httpkit"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

const perPage = 100

// Adapter implements adapters.Adapter against platform B's GitLab-shaped
// REST API. Unlike platforma, B never needs a reference cache: labels and
// state are plain strings on the wire, no numeric id translation.
type Adapter struct {
	client       *httpkit.Client
	logger       ectologger.Logger
	users        repositories.UserRepo
	categoryKeys map[string]struct{}
}

// New builds a platform B adapter. categoryKeys is the configured
// vocabulary of category label names (spec.md §4.1); toIssueView folds
// the first label on the wire that matches one of these into IssueView's
// single-element Labels, symmetric to platforma folding tracker.name.
func New(client *httpkit.Client, users repositories.UserRepo, categoryKeys []string, logger ectologger.Logger) *Adapter {
	keys := make(map[string]struct{}, len(categoryKeys))
	for _, k := range categoryKeys {
		keys[k] = struct{}{}
	}
	return &Adapter{client: client, users: users, categoryKeys: keys, logger: logger}
}

var _ adapters.Adapter = (*Adapter)(nil)

// ListProjects is A's operation; B resolves a path to an id instead.
func (a *Adapter) ListProjects(ctx context.Context) adapters.Result[[]adapters.ProjectSummary] {
	return adapters.Permanent[[]adapters.ProjectSummary]("ListProjects is not supported by platform B")
}

func (a *Adapter) ResolveProjectID(ctx context.Context, pathWithNamespace string) adapters.Result[int] {
	ctx, span := tracing.StartSpan(ctx, "platformb.Adapter.ResolveProjectID")
	defer span.End()

	path := "/projects/" + encodePath(pathWithNamespace)
	resp, err := a.client.DoJSON(ctx, "GET", path, nil)
	if err != nil {
		return adapters.Transient[int](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[int](resp.StatusCode, resp.Body); matched {
		return res
	}

	var p projectDTO
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return adapters.Permanent[int](fmt.Sprintf("malformed project: %v", err))
	}
	return adapters.Ok(p.ID)
}

func (a *Adapter) ListMembers(ctx context.Context, projectRef int) adapters.Result[[]adapters.Member] {
	ctx, span := tracing.StartSpan(ctx, "platformb.Adapter.ListMembers")
	defer span.End()

	var out []adapters.Member
	page := 1
	for {
		path := fmt.Sprintf("/projects/%d/members/all?per_page=%d&page=%d", projectRef, perPage, page)
		resp, err := a.client.DoJSON(ctx, "GET", path, nil)
		if err != nil {
			return adapters.Transient[[]adapters.Member](err)
		}
		if res, matched := adapters.ClassifyHTTPStatus[[]adapters.Member](resp.StatusCode, resp.Body); matched {
			return res
		}

		var members []memberDTO
		if err := json.Unmarshal(resp.Body, &members); err != nil {
			return adapters.Permanent[[]adapters.Member](fmt.Sprintf("malformed member list: %v", err))
		}
		for _, m := range members {
			out = append(out, adapters.Member{ExternalID: m.ID, Handle: m.Username, Name: m.Name})
		}

		if len(members) < perPage {
			break
		}
		page++
	}
	return adapters.Ok(out)
}

func (a *Adapter) ListIssues(ctx context.Context, projectRef int) adapters.Result[[]adapters.IssueView] {
	ctx, span := tracing.StartSpan(ctx, "platformb.Adapter.ListIssues")
	defer span.End()

	var out []adapters.IssueView
	page := 1
	for {
		path := fmt.Sprintf("/projects/%d/issues?per_page=%d&page=%d", projectRef, perPage, page)
		resp, err := a.client.DoJSON(ctx, "GET", path, nil)
		if err != nil {
			return adapters.Transient[[]adapters.IssueView](err)
		}
		if res, matched := adapters.ClassifyHTTPStatus[[]adapters.IssueView](resp.StatusCode, resp.Body); matched {
			return res
		}

		var issues []issueDTO
		if err := json.Unmarshal(resp.Body, &issues); err != nil {
			return adapters.Permanent[[]adapters.IssueView](fmt.Sprintf("malformed issue list: %v", err))
		}
		for _, dto := range issues {
			out = append(out, a.toIssueView(ctx, dto))
		}

		if len(issues) < perPage {
			break
		}
		page++
	}
	return adapters.Ok(out)
}

func (a *Adapter) GetIssue(ctx context.Context, projectRef, issueRef int) adapters.Result[adapters.IssueView] {
	ctx, span := tracing.StartSpan(ctx, "platformb.Adapter.GetIssue")
	defer span.End()

	resp, err := a.client.DoJSON(ctx, "GET", fmt.Sprintf("/projects/%d/issues/%d", projectRef, issueRef), nil)
	if err != nil {
		return adapters.Transient[adapters.IssueView](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[adapters.IssueView](resp.StatusCode, resp.Body); matched {
		return res
	}

	var dto issueDTO
	if err := json.Unmarshal(resp.Body, &dto); err != nil {
		return adapters.Permanent[adapters.IssueView](fmt.Sprintf("malformed issue: %v", err))
	}
	return adapters.Ok(a.toIssueView(ctx, dto))
}

func (a *Adapter) CreateIssue(ctx context.Context, projectRef int, draft adapters.IssueDraft) adapters.Result[adapters.CreatedIssue] {
	ctx, span := tracing.StartSpan(ctx, "platformb.Adapter.CreateIssue")
	defer span.End()

	dto := issueCreateDTO{
		Title:       draft.Title,
		Description: draft.Description,
		DueDate:     draft.DueDate,
	}
	if len(draft.Labels) > 0 {
		dto.Labels = strings.Join(draft.Labels, ",")
	}
	if draft.AssigneeID != nil {
		if rawID, ok := a.rawUserID(ctx, *draft.AssigneeID); ok {
			dto.AssigneeID = &rawID
		}
	}
	if draft.Status == adapters.StatusClosed {
		closeEvent := "close"
		dto.StateEvent = &closeEvent
	}

	resp, err := a.client.DoJSON(ctx, "POST", fmt.Sprintf("/projects/%d/issues", projectRef), dto)
	if err != nil {
		return adapters.Transient[adapters.CreatedIssue](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[adapters.CreatedIssue](resp.StatusCode, resp.Body); matched {
		return res
	}

	var created issueDTO
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return adapters.Permanent[adapters.CreatedIssue](fmt.Sprintf("malformed create response: %v", err))
	}
	return adapters.Ok(adapters.CreatedIssue{ExternalID: created.IID})
}

func (a *Adapter) UpdateIssue(ctx context.Context, projectRef, issueRef int, patch adapters.IssuePatch) adapters.Result[struct{}] {
	ctx, span := tracing.StartSpan(ctx, "platformb.Adapter.UpdateIssue")
	defer span.End()

	if patch.IsEmpty() {
		return adapters.Ok(struct{}{})
	}

	var dto issueUpdateDTO
	if v, ok := patch.Title.Get(); ok {
		dto.Title = &v
	}
	if v, ok := patch.Description.Get(); ok {
		dto.Description = &v
	}
	if v, ok := patch.Labels.Get(); ok {
		joined := strings.Join(v, ",")
		dto.Labels = &joined
	}
	if v, ok := patch.Status.Get(); ok {
		event := "reopen"
		if v == adapters.StatusClosed {
			event = "close"
		}
		dto.StateEvent = &event
	}
	if v, ok := patch.AssigneeID.Get(); ok {
		if v == nil {
			empty := []int{}
			dto.AssigneeIDs = &empty
		} else if rawID, ok := a.rawUserID(ctx, *v); ok {
			dto.AssigneeID = &rawID
		}
	}
	if v, ok := patch.DueDate.Get(); ok {
		dto.DueDate = v
	}

	resp, err := a.client.DoJSON(ctx, "PUT", fmt.Sprintf("/projects/%d/issues/%d", projectRef, issueRef), dto)
	if err != nil {
		return adapters.Transient[struct{}](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[struct{}](resp.StatusCode, resp.Body); matched {
		return res
	}
	return adapters.Ok(struct{}{})
}

// toIssueView translates B's issue DTO into the neutral IssueView per
// spec.md §4.1: label set folding, state <-> {OPEN,CLOSED}, UTC updatedAt.
func (a *Adapter) toIssueView(ctx context.Context, dto issueDTO) adapters.IssueView {
	view := adapters.IssueView{
		ExternalID:  dto.IID,
		Title:       dto.Title,
		Description: dto.Description,
		Labels:      a.foldCategoryLabel(dto.Labels),
		DueDate:     dto.DueDate,
		UpdatedAt:   dto.UpdatedAt.UTC(),
	}
	view.Status = adapters.StatusOpen
	if strings.EqualFold(dto.State, "closed") {
		view.Status = adapters.StatusClosed
	}
	if dto.AssigneeID != nil {
		u, err := a.users.GetByExternalBUserID(ctx, *dto.AssigneeID)
		if err == nil {
			id := u.ID
			view.AssigneeID = &id
		}
	}
	return view
}

// foldCategoryLabel folds B's full label array down to the first label
// that lies in the configured category keys, mirroring platforma's
// tracker.name folding so both sides hand the reconciler the same
// single-element-or-empty Labels shape. With no category keys configured,
// every label passes through unfolded.
func (a *Adapter) foldCategoryLabel(labels []string) []string {
	if len(a.categoryKeys) == 0 {
		return labels
	}
	for _, l := range labels {
		if _, ok := a.categoryKeys[l]; ok {
			return []string{l}
		}
	}
	return nil
}

// rawUserID resolves a neutral User row id into B's numeric user id.
func (a *Adapter) rawUserID(ctx context.Context, neutral uuid.UUID) (int, bool) {
	u, err := a.users.GetByID(ctx, neutral)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": neutral}).Warnf("platformb: no B-side correlation for user, omitting assignee")
		return 0, false
	}
	if u.ExternalBUserID == nil {
		a.logger.WithContext(ctx).WithFields(map[string]any{"user_id": neutral}).Warnf("platformb: user row has no B-side id, omitting assignee")
		return 0, false
	}
	return *u.ExternalBUserID, true
}

// encodePath percent-encodes a path_with_namespace for GitLab's
// :id-as-project-path convention (e.g. "group/subgroup/project"), where
// the embedded "/" must itself be escaped to "%2F".
func encodePath(pathWithNamespace string) string {
	return url.PathEscape(pathWithNamespace)
}
