package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/service/team"
)

func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (r *Router) caller(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return info, ok
}

func (r *Router) handleCreateTeam(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	var payload struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	ctx, cancel := r.storeContext(req)
	defer cancel()
	created, err := r.team.CreateTeam(ctx, team.CreateInput{
		Name:            payload.Name,
		Icon:            payload.Icon,
		CreatorID:       info.UserID,
		CreatorUsername: info.Username,
		CreatorEmail:    info.Email,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, marshalTeam(created))
}

func (r *Router) handleDissolveTeam(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	teamID := mux.Vars(req)["teamId"]
	ctx, cancel := r.storeContext(req)
	defer cancel()
	if err := r.team.DissolveTeam(ctx, teamID, info.UserID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dissolved", "team_id": teamID})
}

func (r *Router) handleInvite(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	var payload struct {
		EmailList []string `json:"emailList"`
		Role      string   `json:"role"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	teamID := mux.Vars(req)["teamId"]
	ctx, cancel := r.storeContext(req)
	defer cancel()
	inv, err := r.team.AddMember(ctx, team.AddMemberInput{
		TeamID:       teamID,
		ActingUserID: info.UserID,
		Emails:       payload.EmailList,
		Role:         payload.Role,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (r *Router) handleRemoveMember(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	vars := mux.Vars(req)
	teamID, target := vars["teamId"], vars["userId"]
	ctx, cancel := r.storeContext(req)
	defer cancel()
	if err := r.team.RemoveMember(ctx, teamID, info.UserID, target); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "team_id": teamID, "user_id": target})
}

func (r *Router) handleGetMembers(w http.ResponseWriter, req *http.Request) {
	teamID := mux.Vars(req)["teamId"]
	ctx, cancel := r.storeContext(req)
	defer cancel()
	members, err := r.team.GetMembers(ctx, teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team_id": teamID, "members": marshalMembers(members)})
}

func (r *Router) handleMyTeams(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	ctx, cancel := r.storeContext(req)
	defer cancel()
	teams, err := r.team.ListUserTeams(ctx, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	items := make([]map[string]any, 0, len(teams))
	for _, t := range teams {
		items = append(items, map[string]any{
			"id":   t.ID,
			"name": t.Name,
			"icon": t.Icon,
			"role": t.Role.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": items})
}

func (r *Router) handleMyMessages(w http.ResponseWriter, req *http.Request) {
	info, ok := r.caller(w, req)
	if !ok {
		return
	}
	if r.inbox == nil {
		writeError(w, http.StatusServiceUnavailable, "inbox unavailable")
		return
	}
	ctx, cancel := r.storeContext(req)
	defer cancel()
	messages, err := r.inbox.Inbox(ctx, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func marshalTeam(t *domain.Team) map[string]any {
	return map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"icon":       t.Icon,
		"creator_id": t.CreatorID,
		"members":    marshalMembers(t.Members),
		"created_at": t.CreatedAt.UTC(),
	}
}

func marshalMembers(members []domain.MemberRef) []map[string]any {
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]any{
			"id":       m.ID,
			"username": m.Username,
			"email":    m.Email,
			"role":     m.Role.String(),
		})
	}
	return out
}
