package platforma

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/trackersync/trackersync/internal/adapters"
	"github.com/trackersync/trackersync/internal/httpkit"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/repositories"
	"github.com/trackersync/trackersync/internal/tracing"
)

const pageSize = 100

// Adapter implements adapters.Adapter against platform A's Redmine-shaped
// REST API. It owns both translation directions for every field the
// uniform contract is neutral about: tracker/status name<->id via refs,
// and A-side raw user id<->neutral User row id via users.
type Adapter struct {
	client *httpkit.Client
	logger ectologger.Logger
	refs   repositories.ReferenceRepo
	users  repositories.UserRepo
}

func New(client *httpkit.Client, refs repositories.ReferenceRepo, users repositories.UserRepo, logger ectologger.Logger) *Adapter {
	return &Adapter{client: client, refs: refs, users: users, logger: logger}
}

var _ adapters.Adapter = (*Adapter)(nil)

func (a *Adapter) ListProjects(ctx context.Context) adapters.Result[[]adapters.ProjectSummary] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.ListProjects")
	defer span.End()

	var out []adapters.ProjectSummary
	offset := 0
	for {
		path := fmt.Sprintf("/projects.json?include=custom_fields&limit=%d&offset=%d", pageSize, offset)
		resp, err := a.client.DoJSON(ctx, "GET", path, nil)
		if err != nil {
			return adapters.Transient[[]adapters.ProjectSummary](err)
		}
		if res, matched := adapters.ClassifyHTTPStatus[[]adapters.ProjectSummary](resp.StatusCode, resp.Body); matched {
			return res
		}

		var page projectListResponseDTO
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return adapters.Permanent[[]adapters.ProjectSummary](fmt.Sprintf("malformed project list: %v", err))
		}
		for _, p := range page.Projects {
			out = append(out, adapters.ProjectSummary{
				ExternalID:   p.ID,
				Key:          p.Identifier,
				Name:         p.Name,
				CustomFields: p.CustomFields,
			})
		}

		offset += len(page.Projects)
		if len(page.Projects) == 0 || offset >= page.TotalCount {
			break
		}
	}
	return adapters.Ok(out)
}

// ResolveProjectID is B's operation; A never resolves a path to an id.
func (a *Adapter) ResolveProjectID(ctx context.Context, pathWithNamespace string) adapters.Result[int] {
	return adapters.Permanent[int]("ResolveProjectID is not supported by platform A")
}

func (a *Adapter) ListMembers(ctx context.Context, projectRef int) adapters.Result[[]adapters.Member] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.ListMembers")
	defer span.End()

	var out []adapters.Member
	offset := 0
	for {
		path := fmt.Sprintf("/projects/%d/memberships.json?limit=%d&offset=%d", projectRef, pageSize, offset)
		resp, err := a.client.DoJSON(ctx, "GET", path, nil)
		if err != nil {
			return adapters.Transient[[]adapters.Member](err)
		}
		if res, matched := adapters.ClassifyHTTPStatus[[]adapters.Member](resp.StatusCode, resp.Body); matched {
			return res
		}

		var page membershipListResponseDTO
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return adapters.Permanent[[]adapters.Member](fmt.Sprintf("malformed membership list: %v", err))
		}
		for _, m := range page.Memberships {
			if m.User == nil {
				continue // group memberships carry no individual user
			}
			out = append(out, adapters.Member{ExternalID: m.User.ID, Handle: m.User.Name, Name: m.User.Name})
		}

		offset += len(page.Memberships)
		if len(page.Memberships) == 0 || offset >= page.TotalCount {
			break
		}
	}
	return adapters.Ok(out)
}

func (a *Adapter) ListIssues(ctx context.Context, projectRef int) adapters.Result[[]adapters.IssueView] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.ListIssues")
	defer span.End()

	var out []adapters.IssueView
	offset := 0
	for {
		path := fmt.Sprintf("/issues.json?project_id=%d&status_id=*&limit=%d&offset=%d", projectRef, pageSize, offset)
		resp, err := a.client.DoJSON(ctx, "GET", path, nil)
		if err != nil {
			return adapters.Transient[[]adapters.IssueView](err)
		}
		if res, matched := adapters.ClassifyHTTPStatus[[]adapters.IssueView](resp.StatusCode, resp.Body); matched {
			return res
		}

		var page issueListResponseDTO
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return adapters.Permanent[[]adapters.IssueView](fmt.Sprintf("malformed issue list: %v", err))
		}
		for _, dto := range page.Issues {
			view, err := a.toIssueView(ctx, dto)
			if err != nil {
				a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"issue_id": dto.ID}).Warnf("platforma: skipping issue with untranslatable assignee")
				continue
			}
			out = append(out, view)
		}

		offset += len(page.Issues)
		if len(page.Issues) == 0 || offset >= page.TotalCount {
			break
		}
	}
	return adapters.Ok(out)
}

func (a *Adapter) GetIssue(ctx context.Context, projectRef, issueRef int) adapters.Result[adapters.IssueView] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.GetIssue")
	defer span.End()

	resp, err := a.client.DoJSON(ctx, "GET", fmt.Sprintf("/issues/%d.json", issueRef), nil)
	if err != nil {
		return adapters.Transient[adapters.IssueView](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[adapters.IssueView](resp.StatusCode, resp.Body); matched {
		return res
	}

	var env issueEnvelopeDTO
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return adapters.Permanent[adapters.IssueView](fmt.Sprintf("malformed issue: %v", err))
	}
	view, err := a.toIssueView(ctx, env.Issue)
	if err != nil {
		return adapters.Permanent[adapters.IssueView](err.Error())
	}
	return adapters.Ok(view)
}

func (a *Adapter) CreateIssue(ctx context.Context, projectRef int, draft adapters.IssueDraft) adapters.Result[adapters.CreatedIssue] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.CreateIssue")
	defer span.End()

	dto := issueCreateDTO{
		Subject:     draft.Title,
		Description: draft.Description,
		DueDate:     draft.DueDate,
	}
	if len(draft.Labels) > 0 {
		tracker, err := a.refs.TrackerByName(ctx, draft.Labels[0])
		if err != nil {
			a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"label": draft.Labels[0]}).Warnf("platforma: unknown tracker name, creating without one")
		} else {
			dto.TrackerID = &tracker.ExternalID
		}
	}
	if statusID, ok := a.statusIDFor(ctx, draft.Status); ok {
		dto.StatusID = &statusID
	}
	if draft.AssigneeID != nil {
		if rawID, ok := a.rawUserID(ctx, *draft.AssigneeID); ok {
			dto.AssignedToID = &rawID
		}
	}

	resp, err := a.client.DoJSON(ctx, "POST", "/issues.json", issueCreateRequestDTO{Issue: dto})
	if err != nil {
		return adapters.Transient[adapters.CreatedIssue](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[adapters.CreatedIssue](resp.StatusCode, resp.Body); matched {
		return res
	}

	var env issueEnvelopeDTO
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return adapters.Permanent[adapters.CreatedIssue](fmt.Sprintf("malformed create response: %v", err))
	}
	return adapters.Ok(adapters.CreatedIssue{ExternalID: env.Issue.ID})
}

func (a *Adapter) UpdateIssue(ctx context.Context, projectRef, issueRef int, patch adapters.IssuePatch) adapters.Result[struct{}] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.UpdateIssue")
	defer span.End()

	if patch.IsEmpty() {
		return adapters.Ok(struct{}{})
	}

	var dto issueUpdateDTO
	if v, ok := patch.Title.Get(); ok {
		dto.Subject = &v
	}
	if v, ok := patch.Description.Get(); ok {
		dto.Description = &v
	}
	if v, ok := patch.Labels.Get(); ok && len(v) > 0 {
		tracker, err := a.refs.TrackerByName(ctx, v[0])
		if err != nil {
			a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"label": v[0]}).Warnf("platforma: unknown tracker name, omitting from patch")
		} else {
			dto.TrackerID = &tracker.ExternalID
		}
	}
	if v, ok := patch.Status.Get(); ok {
		if statusID, ok := a.statusIDFor(ctx, v); ok {
			dto.StatusID = &statusID
		}
	}
	if v, ok := patch.AssigneeID.Get(); ok {
		if v == nil {
			zero := 0
			dto.AssignedToID = &zero // Redmine clears assignment on id 0; acceptable for unassign
		} else if rawID, ok := a.rawUserID(ctx, *v); ok {
			dto.AssignedToID = &rawID
		}
	}
	if v, ok := patch.DueDate.Get(); ok {
		dto.DueDate = v
	}

	resp, err := a.client.DoJSON(ctx, "PUT", fmt.Sprintf("/issues/%d.json", issueRef), issueUpdateRequestDTO{Issue: dto})
	if err != nil {
		return adapters.Transient[struct{}](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[struct{}](resp.StatusCode, resp.Body); matched {
		return res
	}
	return adapters.Ok(struct{}{})
}

// toIssueView translates a Redmine issue DTO into the neutral IssueView,
// per spec.md §4.1: subject<->title, tracker.name folded into labels,
// status.name translated to {OPEN,CLOSED}, updatedAt in UTC.
func (a *Adapter) toIssueView(ctx context.Context, dto issueDTO) (adapters.IssueView, error) {
	view := adapters.IssueView{
		ExternalID:  dto.ID,
		Title:       dto.Subject,
		Description: dto.Description,
		DueDate:     dto.DueDate,
		UpdatedAt:   dto.UpdatedOn.UTC(),
	}
	if dto.Tracker != nil {
		view.Labels = []string{dto.Tracker.Name}
	}
	view.Status = adapters.StatusOpen
	if dto.Status != nil && strings.EqualFold(dto.Status.Name, models.StatusAClosedName) {
		view.Status = adapters.StatusClosed
	}
	if dto.AssignedTo != nil {
		u, err := a.users.GetByExternalAUserID(ctx, dto.AssignedTo.ID)
		if err == nil {
			id := u.ID
			view.AssigneeID = &id
		}
		// no correlation yet: leave AssigneeID nil rather than failing
		// the whole issue translation.
	}
	return view, nil
}

func (a *Adapter) statusIDFor(ctx context.Context, status adapters.Status) (int, bool) {
	name := models.StatusAOpenName
	if status == adapters.StatusClosed {
		name = models.StatusAClosedName
	}
	s, err := a.refs.StatusByName(ctx, name)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status_name": name}).Warnf("platforma: status name missing from reference cache, omitting from patch")
		return 0, false
	}
	return s.ExternalID, true
}

// ReferenceSource is implemented by *Adapter in addition to the neutral
// adapters.Adapter contract. internal/refcache depends on this narrower
// interface directly, rather than on the neutral Adapter, since tracker
// and status lists are a platform-A-only concept with no B equivalent
// (spec.md §4.2: "each pass re-reads A's full tracker and status lists").
type ReferenceSource interface {
	ListTrackers(ctx context.Context) adapters.Result[[]models.TrackerA]
	ListStatuses(ctx context.Context) adapters.Result[[]models.StatusA]
}

var _ ReferenceSource = (*Adapter)(nil)

func (a *Adapter) ListTrackers(ctx context.Context) adapters.Result[[]models.TrackerA] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.ListTrackers")
	defer span.End()

	resp, err := a.client.DoJSON(ctx, "GET", "/trackers.json", nil)
	if err != nil {
		return adapters.Transient[[]models.TrackerA](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[[]models.TrackerA](resp.StatusCode, resp.Body); matched {
		return res
	}

	var page trackerListResponseDTO
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return adapters.Permanent[[]models.TrackerA](fmt.Sprintf("malformed tracker list: %v", err))
	}
	out := make([]models.TrackerA, 0, len(page.Trackers))
	for _, t := range page.Trackers {
		out = append(out, models.TrackerA{ExternalID: t.ID, Name: t.Name})
	}
	return adapters.Ok(out)
}

func (a *Adapter) ListStatuses(ctx context.Context) adapters.Result[[]models.StatusA] {
	ctx, span := tracing.StartSpan(ctx, "platforma.Adapter.ListStatuses")
	defer span.End()

	resp, err := a.client.DoJSON(ctx, "GET", "/issue_statuses.json", nil)
	if err != nil {
		return adapters.Transient[[]models.StatusA](err)
	}
	if res, matched := adapters.ClassifyHTTPStatus[[]models.StatusA](resp.StatusCode, resp.Body); matched {
		return res
	}

	var page statusListResponseDTO
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return adapters.Permanent[[]models.StatusA](fmt.Sprintf("malformed status list: %v", err))
	}
	out := make([]models.StatusA, 0, len(page.Statuses))
	for _, s := range page.Statuses {
		out = append(out, models.StatusA{ExternalID: s.ID, Name: s.Name})
	}
	return adapters.Ok(out)
}

// rawUserID resolves a neutral User row id into A's numeric user id.
func (a *Adapter) rawUserID(ctx context.Context, neutral uuid.UUID) (int, bool) {
	u, err := a.users.GetByID(ctx, neutral)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": neutral}).Warnf("platforma: no A-side correlation for user, omitting assignee")
		return 0, false
	}
	if u.ExternalAUserID == nil {
		a.logger.WithContext(ctx).WithFields(map[string]any{"user_id": neutral}).Warnf("platforma: user row has no A-side id, omitting assignee")
		return 0, false
	}
	return *u.ExternalAUserID, true
}
