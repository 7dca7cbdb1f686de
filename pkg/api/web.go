package api

import (
	"net/http"
	"time"

	"github.com/inkvault/inkvault/pkg/fileservice"
	"github.com/inkvault/inkvault/pkg/integrity"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/search"
	"github.com/inkvault/inkvault/pkg/userservice"
)

// webHandler serves the browser UI: flattened tree view (category
// containers hidden) and camelCase JSON.
type webHandler struct {
	users     *userservice.Service
	files     *fileservice.Service
	search    *search.Service
	integrity *integrity.Service
}

// webFileVO is one tree entry in web responses.
type webFileVO struct {
	ID          int64  `json:"id,string"`
	DirectoryID int64  `json:"directoryId,string"`
	FileName    string `json:"fileName"`
	IsFolder    string `json:"isFolder"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5"`
	UpdateTime  int64  `json:"updateTime"`
}

func nodeToWebVO(n *models.FileNode) webFileVO {
	return webFileVO{
		ID:          n.ID,
		DirectoryID: n.ParentID,
		FileName:    n.Name,
		IsFolder:    n.IsFolder,
		Size:        n.Size,
		MD5:         n.MD5,
		UpdateTime:  n.UpdateTime.UnixMilli(),
	}
}

// Register handles POST /api/user/register. The password travels as an
// MD5 hex digest, matching what devices store.
func (h *webHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account  string `json:"account"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Account == "" || req.Password == "" {
		writeBadRequest(w, "account and password are required")
		return
	}

	user, err := h.users.Register(r.Context(), req.Account, req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success  bool   `json:"success"`
		UserName string `json:"userName"`
	}{true, user.GetDisplayName()})
}

// Login handles POST /api/user/login.
func (h *webHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account  string `json:"account"`
		Password string `json:"password"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Account == "" || req.Password == "" {
		writeBadRequest(w, "account and password are required")
		return
	}

	token, user, err := h.users.WebLogin(r.Context(), req.Account, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	refresh, err := h.users.IssueRefreshToken(user.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success      bool   `json:"success"`
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
		UserName     string `json:"userName"`
		IsAdmin      bool   `json:"isAdmin"`
	}{true, token, refresh, user.GetDisplayName(), user.IsAdmin})
}

// RefreshToken handles POST /api/user/token/refresh: exchanges a live
// refresh token for a fresh session token.
func (h *webHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	token, user, err := h.users.RedeemRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success  bool   `json:"success"`
		Token    string `json:"token"`
		UserName string `json:"userName"`
	}{true, token, user.GetDisplayName()})
}

// Logout handles POST /api/user/logout.
func (h *webHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Logout(r.Context(), r.Header.Get(SessionHeader)); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

type webListResponse struct {
	Success bool        `json:"success"`
	Total   int         `json:"total"`
	List    []webFileVO `json:"userFileVOList"`
}

// ListFiles handles POST /api/file/list/query.
func (h *webHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	h.listInto(w, r, false)
}

// ListFolders handles POST /api/file/folder/list/query: like ListFiles
// but restricted to folders, for move/copy destination pickers.
func (h *webHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	h.listInto(w, r, true)
}

func (h *webHandler) listInto(w http.ResponseWriter, r *http.Request, foldersOnly bool) {
	sess := sessionFromContext(r.Context())
	var req struct {
		DirectoryID string `json:"directoryId"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	dirID := int64(models.RootParentID)
	if req.DirectoryID != "" {
		id, ok := parseID(req.DirectoryID)
		if !ok {
			writeBadRequest(w, "invalid directoryId")
			return
		}
		dirID = id
	}

	nodes, err := h.files.List(r.Context(), sess.User.ID, dirID, true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	vos := make([]webFileVO, 0, len(nodes))
	for _, n := range nodes {
		if foldersOnly && !n.Folder() {
			continue
		}
		vos = append(vos, nodeToWebVO(n))
	}
	writeOK(w, webListResponse{Success: true, Total: len(vos), List: vos})
}

// AddFolder handles POST /api/file/folder/add.
func (h *webHandler) AddFolder(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		DirectoryID string `json:"directoryId"`
		FileName    string `json:"fileName"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FileName == "" {
		writeBadRequest(w, "fileName is required")
		return
	}
	dirID := int64(models.RootParentID)
	if req.DirectoryID != "" {
		id, ok := parseID(req.DirectoryID)
		if !ok {
			writeBadRequest(w, "invalid directoryId")
			return
		}
		dirID = id
	}

	node, err := h.files.CreateFolder(r.Context(), sess.User.ID, dirID, req.FileName, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success bool      `json:"success"`
		File    webFileVO `json:"userFileVO"`
	}{true, nodeToWebVO(node)})
}

// MoveFile handles POST /api/file/move.
func (h *webHandler) MoveFile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID          string `json:"id"`
		DirectoryID string `json:"directoryId"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}
	dirID, ok := parseID(req.DirectoryID)
	if !ok {
		writeBadRequest(w, "invalid directoryId")
		return
	}

	if _, err := h.files.Move(r.Context(), sess.User.ID, id, dirID, "", true); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// CopyFile handles POST /api/file/copy.
func (h *webHandler) CopyFile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID          string `json:"id"`
		DirectoryID string `json:"directoryId"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}
	dirID, ok := parseID(req.DirectoryID)
	if !ok {
		writeBadRequest(w, "invalid directoryId")
		return
	}

	if _, err := h.files.Copy(r.Context(), sess.User.ID, id, dirID, true); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// RenameFile handles POST /api/file/rename.
func (h *webHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		ID       string `json:"id"`
		FileName string `json:"fileName"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	id, ok := parseID(req.ID)
	if !ok {
		writeBadRequest(w, "invalid id")
		return
	}
	if req.FileName == "" {
		writeBadRequest(w, "fileName is required")
		return
	}

	node, err := h.files.Rename(r.Context(), sess.User.ID, id, req.FileName, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success bool      `json:"success"`
		File    webFileVO `json:"userFileVO"`
	}{true, nodeToWebVO(node)})
}

// DeleteFiles handles POST /api/file/delete: batch soft delete.
func (h *webHandler) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	for _, s := range req.IDs {
		id, ok := parseID(s)
		if !ok {
			writeBadRequest(w, "invalid id")
			return
		}
		if err := h.files.Delete(r.Context(), sess.User.ID, id); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeSuccess(w)
}

// Capacity handles POST /api/file/capacity/query.
func (h *webHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	usage, err := h.files.GetSpaceUsage(r.Context(), sess.User.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success       bool  `json:"success"`
		UsedCapacity  int64 `json:"usedCapacity"`
		TotalCapacity int64 `json:"totalCapacity"`
	}{true, usage.Used, usage.Allocated})
}

// PathQuery handles POST /api/file/path/query: the node's flattened
// display path plus the IDs along it for breadcrumb navigation.
func (h *webHandler) PathQuery(w http.ResponseWriter, r *http.Request) {
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

	info, err := h.files.GetPathInfo(r.Context(), sess.User.ID, id, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	idList := make([]string, 0, len(info.IDPath))
	for _, pid := range info.IDPath {
		idList = append(idList, formatID(pid))
	}
	writeOK(w, struct {
		Success    bool     `json:"success"`
		Path       string   `json:"path"`
		IDPathList []string `json:"idPathList"`
	}{true, info.Path, idList})
}

// UploadApply handles POST /api/file/upload/apply/query.
func (h *webHandler) UploadApply(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		FileName string `json:"fileName"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FileName == "" {
		writeBadRequest(w, "fileName is required")
		return
	}

	ticket, err := h.files.UploadApply(r.Context(), sess.User.ID, req.FileName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success       bool   `json:"success"`
		InnerName     string `json:"innerName"`
		FullUploadURL string `json:"fullUploadUrl"`
		PartUploadURL string `json:"partUploadUrl"`
	}{true, ticket.InnerName, ticket.FullUploadURL, ticket.PartUploadURL})
}

// UploadFinish handles POST /api/file/upload/finish/query. The path is
// in the flattened view; container mapping is applied server-side.
func (h *webHandler) UploadFinish(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		FileName  string `json:"fileName"`
		Path      string `json:"path"`
		InnerName string `json:"innerName"`
		MD5       string `json:"md5"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FileName == "" || req.InnerName == "" {
		writeBadRequest(w, "fileName and innerName are required")
		return
	}

	node, err := h.files.FinishUpload(r.Context(), sess.User.ID, req.FileName, req.Path, req.MD5, req.InnerName, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success bool      `json:"success"`
		File    webFileVO `json:"userFileVO"`
	}{true, nodeToWebVO(node)})
}

// DownloadQuery handles POST /api/file/download/query: a fresh signed
// download URL for the browser.
func (h *webHandler) DownloadQuery(w http.ResponseWriter, r *http.Request) {
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
		Success  bool   `json:"success"`
		URL      string `json:"url"`
		FileName string `json:"fileName"`
		Size     int64  `json:"size"`
	}{true, ticket.URL, ticket.Node.Name, ticket.Node.Size})
}

// searchResultVO is one semantic search hit.
type searchResultVO struct {
	FileID      int64   `json:"fileId,string"`
	FileName    string  `json:"fileName"`
	PageID      string  `json:"pageId"`
	PageIndex   int     `json:"pageIndex"`
	Score       float64 `json:"score"`
	TextPreview string  `json:"textPreview"`
	Date        string  `json:"date,omitempty"`
}

// SearchQuery handles POST /api/file/search/query: semantic search over
// transcribed handwriting.
func (h *webHandler) SearchQuery(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var req struct {
		Keyword   string `json:"keyword"`
		TopN      int    `json:"topN"`
		FileName  string `json:"fileName"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Keyword == "" {
		writeBadRequest(w, "keyword is required")
		return
	}

	q := search.Query{
		Text:       req.Keyword,
		TopN:       req.TopN,
		NameFilter: req.FileName,
	}
	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeBadRequest(w, "invalid startDate")
			return
		}
		q.DateAfter = t
	}
	if req.EndDate != "" {
		t, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			writeBadRequest(w, "invalid endDate")
			return
		}
		q.DateBefore = t.Add(24 * time.Hour)
	}

	results, err := h.search.Search(r.Context(), sess.User.ID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	vos := make([]searchResultVO, 0, len(results))
	for _, res := range results {
		vo := searchResultVO{
			FileID:      res.FileID,
			FileName:    res.FileName,
			PageID:      res.PageID,
			PageIndex:   res.PageIndex,
			Score:       res.Score,
			TextPreview: res.TextPreview,
		}
		if !res.Date.IsZero() {
			vo.Date = res.Date.Format("2006-01-02")
		}
		vos = append(vos, vo)
	}
	writeOK(w, struct {
		Success bool             `json:"success"`
		Total   int              `json:"total"`
		List    []searchResultVO `json:"searchResultVOList"`
	}{true, len(vos), vos})
}

// IntegrityQuery handles POST /api/file/integrity/query: verifies every
// active file still has its blob at the recorded size.
func (h *webHandler) IntegrityQuery(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	report, err := h.integrity.Scan(r.Context(), sess.User.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Success      bool `json:"success"`
		Scanned      int  `json:"scanned"`
		OK           int  `json:"ok"`
		MissingBlob  int  `json:"missingBlob"`
		SizeMismatch int  `json:"sizeMismatch"`
	}{true, report.Scanned, report.OK, report.MissingBlob, report.SizeMismatch})
}
