// Package api exposes the HTTP surface: the vendor device protocol, the
// web UI API and the public signature-authenticated object routes, all
// on one chi mux.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkvault/inkvault/pkg/fileservice"
	"github.com/inkvault/inkvault/pkg/integrity"
	"github.com/inkvault/inkvault/pkg/metrics"
	"github.com/inkvault/inkvault/pkg/search"
	"github.com/inkvault/inkvault/pkg/syncsvc"
	"github.com/inkvault/inkvault/pkg/userservice"
)

// Deps carries the constructed services the routers delegate to.
type Deps struct {
	Users     *userservice.Service
	Files     *fileservice.Service
	Sync      *syncsvc.Coordinator
	Search    *search.Service
	Integrity *integrity.Service

	// Metrics may be nil to disable HTTP instrumentation.
	Metrics *metrics.HTTPMetrics
}

// NewRouter builds the full HTTP handler.
//
// Three route families share the mux:
//   - the device API (snake_case JSON, x-access-token sessions)
//   - the web API (camelCase JSON, same session middleware)
//   - the public OSS routes (HMAC signature auth, no session)
func NewRouter(cfg Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	if deps.Metrics != nil {
		r.Use(requestMetrics(deps.Metrics))
	}

	device := &deviceHandler{users: deps.Users, files: deps.Files, sync: deps.Sync}
	web := &webHandler{users: deps.Users, files: deps.Files, search: deps.Search, integrity: deps.Integrity}
	oss := &ossHandler{files: deps.Files}
	auth := sessionAuth(deps.Users)

	// Unauthenticated surface: the liveness probe devices hit before
	// syncing, login and metrics.
	r.Get("/api/file/query/server", device.QueryServer)
	r.Post("/api/official/user/query/random/code", device.RandomCode)
	r.Post("/api/official/user/account/login/new", device.Login(userservice.MethodNew))
	r.Post("/api/official/user/account/login/equipment", device.Login(userservice.MethodEquipment))
	r.Post("/api/user/register", web.Register)
	r.Post("/api/user/login", web.Login)
	r.Post("/api/user/token/refresh", web.RefreshToken)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public OSS routes, signature-authenticated.
	r.Post(fileservice.UploadPath, oss.Upload)
	r.Post(fileservice.PartUploadPath, oss.UploadPart)
	r.Put(fileservice.PartUploadPath, oss.UploadPart)
	r.Get(fileservice.DownloadPath, oss.Download)

	// Device API.
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/api/file/2/files/synchronous/start", device.SyncStart)
		r.Post("/api/file/2/files/synchronous/end", device.SyncEnd)
		r.Post("/api/file/2/files/list_folder", device.ListFolder)
		r.Post("/api/file/3/files/list_folder_v3", device.ListFolderV3)
		r.Post("/api/file/2/users/get_space_usage", device.SpaceUsage)
		r.Post("/api/file/3/files/query/by/path_v3", device.QueryByPath)
		r.Post("/api/file/3/files/query_v3", device.QueryByID)
		r.Post("/api/file/3/files/upload/apply", device.UploadApply)
		r.Post("/api/file/2/files/upload/finish", device.UploadFinish)
		r.Post("/api/file/3/files/download_v3", device.Download)
		r.Post("/api/file/3/files/create_folder_v2", device.CreateFolder)
		r.Post("/api/file/3/files/delete_folder_v3", device.DeleteNode)
		r.Post("/api/file/3/files/move_v3", device.Move)
		r.Post("/api/file/3/files/copy_v3", device.Copy)
		r.Post("/api/file/recycle/list/query", device.RecycleList)
		r.Post("/api/file/recycle/delete", device.RecycleDelete)
		r.Post("/api/file/recycle/revert", device.RecycleRevert)
		r.Post("/api/file/recycle/clear", device.RecycleClear)
		r.Post("/api/file/label/list/search", device.LabelSearch)
	})

	// Web API.
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/api/user/logout", web.Logout)
		r.Post("/api/file/list/query", web.ListFiles)
		r.Post("/api/file/folder/add", web.AddFolder)
		r.Post("/api/file/folder/list/query", web.ListFolders)
		r.Post("/api/file/move", web.MoveFile)
		r.Post("/api/file/copy", web.CopyFile)
		r.Post("/api/file/rename", web.RenameFile)
		r.Post("/api/file/delete", web.DeleteFiles)
		r.Post("/api/file/capacity/query", web.Capacity)
		r.Post("/api/file/path/query", web.PathQuery)
		r.Post("/api/file/upload/apply/query", web.UploadApply)
		r.Post("/api/file/upload/finish/query", web.UploadFinish)
		r.Post("/api/file/download/query", web.DownloadQuery)
		r.Post("/api/file/search/query", web.SearchQuery)
		r.Post("/api/file/integrity/query", web.IntegrityQuery)
	})

	return r
}
