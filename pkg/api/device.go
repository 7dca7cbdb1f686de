package api

import (
	"net/http"
	"strconv"

	"github.com/inkvault/inkvault/pkg/fileservice"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/syncsvc"
	"github.com/inkvault/inkvault/pkg/userservice"
)

// deviceHandler serves the vendor device protocol: physical tree view,
// snake_case JSON, string-encoded entity IDs.
type deviceHandler struct {
	users *userservice.Service
	files *fileservice.Service
	sync  *syncsvc.Coordinator
}

// entryVO is one tree entry in device responses.
type entryVO struct {
	ID             int64  `json:"id,string"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	ParentPath     string `json:"parent_path"`
	ContentHash    string `json:"content_hash,omitempty"`
	IsDownloadable bool   `json:"is_downloadable"`
	Size           int64  `json:"size"`
	LastUpdateTime int64  `json:"last_update_time"`
	Tag            string `json:"tag"`
}

func nodeToEntry(n *models.FileNode, parentPath string) entryVO {
	tag := "file"
	if n.Folder() {
		tag = "folder"
	}
	display := parentPath + "/" + n.Name
	if parentPath == "/" {
		display = "/" + n.Name
	}
	return entryVO{
		ID:             n.ID,
		Name:           n.Name,
		PathDisplay:    display,
		ParentPath:     parentPath,
		ContentHash:    n.MD5,
		IsDownloadable: !n.Folder(),
		Size:           n.Size,
		LastUpdateTime: n.UpdateTime.UnixMilli(),
		Tag:            tag,
	}
}

// parseID parses a string-encoded entity ID from a request body.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// QueryServer handles GET /api/file/query/server. Devices probe it to
// decide whether the configured sync endpoint is alive.
func (h *deviceHandler) QueryServer(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w)
}

// RandomCode handles POST /api/official/user/query/random/code.
func (h *deviceHandler) RandomCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Account == "" {
		writeBadRequest(w, "account is required")
		return
	}

	code, err := h.users.IssueChallenge(r.Context(), req.Account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success    bool   `json:"success"`
		RandomCode string `json:"randomCode"`
		Timestamp  int64  `json:"timestamp"`
	}{true, code.RandomCode, code.Timestamp})
}

// Login handles POST /api/official/user/account/login/{method} for
// method "new" (first bind) and "equipment" (rebind). Both run the same
// challenge-response check.
func (h *deviceHandler) Login(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Account     string `json:"account"`
			Password    string `json:"password"`
			EquipmentNo string `json:"equipmentNo"`
		}
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if req.Account == "" || req.Password == "" {
			writeBadRequest(w, "account and password are required")
			return
		}

		token, user, err := h.users.DeviceLogin(r.Context(), req.Account, req.Password, req.EquipmentNo, method)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeOK(w, struct {
			Success         bool   `json:"success"`
			Token           string `json:"token"`
			UserName        string `json:"userName"`
			IsBind          string `json:"isBind"`
			IsBindEquipment string `json:"isBindEquipment"`
		}{true, token, user.GetDisplayName(), models.FlagYes, models.FlagYes})
	}
}

// SyncStart handles POST /api/file/2/files/synchronous/start.
func (h *deviceHandler) SyncStart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		EquipmentNo string `json:"equipmentNo"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	equipment := req.EquipmentNo
	if equipment == "" {
		equipment = sess.Equipment
	}

	synType, err := h.sync.Start(r.Context(), sess.User.ID, equipment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success bool `json:"success"`
		SynType bool `json:"synType"`
	}{true, synType})
}

// SyncEnd handles POST /api/file/2/files/synchronous/end.
func (h *deviceHandler) SyncEnd(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		EquipmentNo string `json:"equipmentNo"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	equipment := req.EquipmentNo
	if equipment == "" {
		equipment = sess.Equipment
	}

	if err := h.sync.End(r.Context(), sess.User.ID, equipment); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

type listFolderResponse struct {
	Success bool      `json:"success"`
	Entries []entryVO `json:"entries"`
}

// ListFolder handles POST /api/file/2/files/list_folder (by path).
func (h *deviceHandler) ListFolder(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	node, err := h.files.ResolvePath(r.Context(), sess.User.ID, req.Path, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.listInto(w, r, node.ID, req.Recursive)
}

// ListFolderV3 handles POST /api/file/3/files/list_folder_v3 (by ID).
func (h *deviceHandler) ListFolderV3(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		Recursive bool   `json:"recursive"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}
	h.listInto(w, r, id, req.Recursive)
}

func (h *deviceHandler) listInto(w http.ResponseWriter, r *http.Request, folderID int64, recursive bool) {
	sess := sessionFromContext(r.Context())
	userID := sess.User.ID

	var nodes []*models.FileNode
	var err error
	if recursive {
		nodes, err = h.files.ListRecursive(r.Context(), userID, folderID)
	} else {
		nodes, err = h.files.List(r.Context(), userID, folderID, false)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries := make([]entryVO, 0, len(nodes))
	for _, n := range nodes {
		info, err := h.files.GetPathInfo(r.Context(), userID, n.ID, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		entries = append(entries, h.entryWithPath(n, info.Path))
	}
	writeOK(w, listFolderResponse{Success: true, Entries: entries})
}

// entryWithPath builds an entry when the node's own display path is
// already known.
func (h *deviceHandler) entryWithPath(n *models.FileNode, display string) entryVO {
	e := nodeToEntry(n, parentOf(display))
	e.PathDisplay = display
	return e
}

func parentOf(display string) string {
	for i := len(display) - 1; i > 0; i-- {
		if display[i] == '/' {
			return display[:i]
		}
	}
	return "/"
}

// SpaceUsage handles POST /api/file/2/users/get_space_usage.
func (h *deviceHandler) SpaceUsage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	usage, err := h.files.GetSpaceUsage(r.Context(), sess.User.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success      bool  `json:"success"`
		Used         int64 `json:"used"`
		AllocationVO struct {
			Allocated int64 `json:"allocated"`
		} `json:"allocation_vo"`
	}{Success: true, Used: usage.Used, AllocationVO: struct {
		Allocated int64 `json:"allocated"`
	}{usage.Allocated}})
}

type queryResponse struct {
	Success bool    `json:"success"`
	Entry   entryVO `json:"entries_vo"`
}

// QueryByPath handles POST /api/file/3/files/query/by/path_v3.
func (h *deviceHandler) QueryByPath(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	node, err := h.files.ResolvePath(r.Context(), sess.User.ID, req.Path, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.queryInto(w, r, node)
}

// QueryByID handles POST /api/file/3/files/query_v3.
func (h *deviceHandler) QueryByID(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	node, err := h.files.GetNode(r.Context(), sess.User.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.queryInto(w, r, node)
}

func (h *deviceHandler) queryInto(w http.ResponseWriter, r *http.Request, node *models.FileNode) {
	sess := sessionFromContext(r.Context())
	info, err := h.files.GetPathInfo(r.Context(), sess.User.ID, node.ID, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, queryResponse{Success: true, Entry: h.entryWithPath(node, info.Path)})
}

// UploadApply handles POST /api/file/3/files/upload/apply.
func (h *deviceHandler) UploadApply(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		FileName string `json:"file_name"`
		Path     string `json:"path"`
		Size     int64  `json:"size"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FileName == "" {
		writeBadRequest(w, "file_name is required")
		return
	}

	ticket, err := h.files.UploadApply(r.Context(), sess.User.ID, req.FileName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success       bool   `json:"success"`
		InnerName     string `json:"inner_name"`
		FullUploadURL string `json:"full_upload_url"`
		PartUploadURL string `json:"part_upload_url"`
	}{true, ticket.InnerName, ticket.FullUploadURL, ticket.PartUploadURL})
}

// UploadFinish handles POST /api/file/2/files/upload/finish.
func (h *deviceHandler) UploadFinish(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		FileName    string `json:"file_name"`
		Path        string `json:"path"`
		ContentHash string `json:"content_hash"`
		InnerName   string `json:"inner_name"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FileName == "" || req.InnerName == "" {
		writeBadRequest(w, "file_name and inner_name are required")
		return
	}

	node, err := h.files.FinishUpload(r.Context(), sess.User.ID, req.FileName, req.Path, req.ContentHash, req.InnerName, false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	info, err := h.files.GetPathInfo(r.Context(), sess.User.ID, node.ID, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success     bool   `json:"success"`
		ID          int64  `json:"id,string"`
		PathDisplay string `json:"path_display"`
		Size        int64  `json:"size"`
		ContentHash string `json:"content_hash"`
	}{true, node.ID, info.Path, node.Size, node.MD5})
}

// Download handles POST /api/file/3/files/download_v3.
func (h *deviceHandler) Download(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	ticket, err := h.files.ResolveDownload(r.Context(), sess.User.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success     bool   `json:"success"`
		URL         string `json:"url"`
		ID          int64  `json:"id,string"`
		Name        string `json:"name"`
		ContentHash string `json:"content_hash"`
		Size        int64  `json:"size"`
	}{true, ticket.URL, ticket.Node.ID, ticket.Node.Name, ticket.Node.MD5, ticket.Node.Size})
}

// CreateFolder handles POST /api/file/3/files/create_folder_v2. The full
// directory path is created like mkdir -p.
func (h *deviceHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Path == "" || req.Path == "/" {
		writeBadRequest(w, "path is required")
		return
	}

	id, err := h.files.CreateFolderPath(r.Context(), sess.User.ID, req.Path, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success bool  `json:"success"`
		ID      int64 `json:"id,string"`
	}{true, id})
}

// DeleteNode handles POST /api/file/3/files/delete_folder_v3. Despite
// the route name the vendor protocol deletes files through it too.
func (h *deviceHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	if err := h.files.Delete(r.Context(), sess.User.ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// Move handles POST /api/file/3/files/move_v3.
func (h *deviceHandler) Move(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID         string `json:"id"`
		ToPath     string `json:"to_path"`
		FileName   string `json:"file_name"`
		Autorename bool   `json:"autorename"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	dest, err := h.files.ResolvePath(r.Context(), sess.User.ID, req.ToPath, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.files.Move(r.Context(), sess.User.ID, id, dest.ID, req.FileName, req.Autorename); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// Copy handles POST /api/file/3/files/copy_v3.
func (h *deviceHandler) Copy(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID         string `json:"id"`
		ToPath     string `json:"to_path"`
		Autorename bool   `json:"autorename"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	dest, err := h.files.ResolvePath(r.Context(), sess.User.ID, req.ToPath, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.files.Copy(r.Context(), sess.User.ID, id, dest.ID, req.Autorename); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// recycleVO is one soft-deleted entry in recycle responses.
type recycleVO struct {
	ID         int64  `json:"id,string"`
	FileID     int64  `json:"file_id,string"`
	Name       string `json:"name"`
	IsFolder   string `json:"is_folder"`
	Size       int64  `json:"size"`
	DeleteTime int64  `json:"delete_time"`
}

// RecycleList handles POST /api/file/recycle/list/query.
func (h *deviceHandler) RecycleList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	entries, err := h.files.ListRecycle(r.Context(), sess.User.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	vos := make([]recycleVO, 0, len(entries))
	for _, e := range entries {
		vos = append(vos, recycleVO{
			ID:         e.ID,
			FileID:     e.NodeID,
			Name:       e.Name,
			IsFolder:   e.IsFolder,
			Size:       e.Size,
			DeleteTime: e.DeleteTime.UnixMilli(),
		})
	}
	writeOK(w, struct {
		Success bool        `json:"success"`
		Total   int         `json:"total"`
		List    []recycleVO `json:"recycle_file_vo_list"`
	}{true, len(vos), vos})
}

// RecycleDelete handles POST /api/file/recycle/delete. Deleting recycle
// entries purges them for good.
func (h *deviceHandler) RecycleDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	ids := make([]int64, 0, len(req.IDs))
	for _, s := range req.IDs {
		id, ok := parseID(s)
		if !ok {
			writeBadRequest(w, "invalid id")
			return
		}
		ids = append(ids, id)
	}
	if err := h.files.PurgeRecycle(r.Context(), sess.User.ID, ids); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// RecycleRevert handles POST /api/file/recycle/revert.
func (h *deviceHandler) RecycleRevert(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}

	node, err := h.files.Restore(r.Context(), sess.User.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success bool   `json:"success"`
		ID      int64  `json:"id,string"`
		Name    string `json:"name"`
	}{true, node.ID, node.Name})
}

// RecycleClear handles POST /api/file/recycle/clear.
func (h *deviceHandler) RecycleClear(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := h.files.ClearRecycle(r.Context(), sess.User.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// LabelSearch handles POST /api/file/label/list/search: substring match
// on file names.
func (h *deviceHandler) LabelSearch(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		Keyword string `json:"keyword"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Keyword == "" {
		writeBadRequest(w, "keyword is required")
		return
	}

	nodes, err := h.files.Search(r.Context(), sess.User.ID, req.Keyword)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries := make([]entryVO, 0, len(nodes))
	for _, n := range nodes {
		info, err := h.files.GetPathInfo(r.Context(), sess.User.ID, n.ID, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		entries = append(entries, h.entryWithPath(n, info.Path))
	}
	writeOK(w, listFolderResponse{Success: true, Entries: entries})
}
