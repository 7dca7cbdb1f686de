package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/fileservice"
)

// ossHandler serves the public object-storage routes. There is no
// session token here; every request carries an HMAC signature minted by
// upload/apply or download_v3.
type ossHandler struct {
	files *fileservice.Service
}

// authorize verifies the request signature and resolves the user baked
// into it. consumeNonce enforces single use.
func (h *ossHandler) authorize(w http.ResponseWriter, r *http.Request, consumeNonce bool) (int64, bool) {
	tag, err := h.files.Signer().Verify(r.Context(), r.URL.Path, r.URL.Query(), consumeNonce)
	if err != nil {
		writeError(w, r, err)
		return 0, false
	}
	userID, err := fileservice.ParseUserTag(tag)
	if err != nil {
		writeError(w, r, err)
		return 0, false
	}
	return userID, true
}

// partReader returns the payload reader: the "file" part for multipart
// requests, the raw body otherwise.
func partReader(r *http.Request) (io.ReadCloser, error) {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(ct, "multipart/") {
		return r.Body, nil
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, err
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Upload handles POST /api/oss/upload: a single-shot upload of the whole
// blob under the object_name allocated by upload/apply.
func (h *ossHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}
	objectName := r.URL.Query().Get("object_name")
	if objectName == "" {
		writeBadRequest(w, "object_name is required")
		return
	}

	body, err := partReader(r)
	if err != nil {
		writeBadRequest(w, "invalid upload body")
		return
	}
	defer body.Close()

	md5sum, size, err := h.files.Blobs().PutStream(r.Context(), blob.BucketUserData, objectName, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "blob uploaded",
		logger.KeyUserID, userID,
		logger.KeyStorageKey, objectName,
		"size", size,
	)
	writeOK(w, struct {
		Success   bool   `json:"success"`
		InnerName string `json:"inner_name"`
		MD5       string `json:"md5"`
	}{true, objectName, md5sum})
}

// UploadPart handles POST|PUT /api/oss/upload/part. Intermediate parts
// reuse the same signed URL, so only the final part consumes the nonce.
// When every part has arrived the parts are merged into the final blob.
func (h *ossHandler) UploadPart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partNumber, err := strconv.Atoi(q.Get("partNumber"))
	if err != nil || partNumber < 1 {
		writeBadRequest(w, "invalid partNumber")
		return
	}
	totalChunks, err := strconv.Atoi(q.Get("totalChunks"))
	if err != nil || totalChunks < 1 || partNumber > totalChunks {
		writeBadRequest(w, "invalid totalChunks")
		return
	}
	uploadID := q.Get("uploadId")
	objectName := q.Get("object_name")
	if uploadID == "" || objectName == "" {
		writeBadRequest(w, "uploadId and object_name are required")
		return
	}

	userID, ok := h.authorize(w, r, partNumber == totalChunks)
	if !ok {
		return
	}

	body, err := partReader(r)
	if err != nil {
		writeBadRequest(w, "invalid upload body")
		return
	}
	defer body.Close()

	chunkMD5, err := h.files.Chunks().PutPart(r.Context(), userID, uploadID, partNumber, body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := struct {
		Success    bool   `json:"success"`
		UploadID   string `json:"upload_id"`
		PartNumber int    `json:"part_number"`
		ChunkMD5   string `json:"chunk_md5"`
		Status     string `json:"status"`
		InnerName  string `json:"inner_name,omitempty"`
		MD5        string `json:"md5,omitempty"`
	}{Success: true, UploadID: uploadID, PartNumber: partNumber, ChunkMD5: chunkMD5, Status: "success"}

	parts, err := h.files.Chunks().ListParts(r.Context(), userID, uploadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(parts) == totalChunks {
		// Merge drops the staged parts itself on success.
		md5sum, size, err := h.files.Chunks().Merge(r.Context(), userID, uploadID, objectName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		logger.InfoCtx(r.Context(), "chunked upload merged",
			logger.KeyUserID, userID,
			logger.KeyStorageKey, objectName,
			"parts", totalChunks,
			"size", size,
		)
		resp.InnerName = objectName
		resp.MD5 = md5sum
	}
	writeOK(w, resp)
}

// Download handles GET /api/oss/download: the blob bytes with range
// support. The URL is single-use.
func (h *ossHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, true)
	if !ok {
		return
	}
	fileID, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid id")
		return
	}

	node, rc, err := h.files.OpenFile(r.Context(), userID, fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+node.Name+`"`)
	http.ServeContent(w, r, node.Name, node.UpdateTime, rc)
}
