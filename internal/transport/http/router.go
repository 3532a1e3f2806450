package http

import (
	"github.com/gorilla/mux"
)

// NewRouter configures the HTTP routes.
func NewRouter(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/download", handler.SubmitDownload).Methods("POST")
	r.HandleFunc("/status/{id}", handler.JobStatus).Methods("GET")
	r.HandleFunc("/queue", handler.Queue).Methods("GET")
	r.HandleFunc("/pause/{id}", handler.Pause).Methods("POST")
	r.HandleFunc("/resume/{id}", handler.Resume).Methods("POST")
	r.HandleFunc("/pause_all", handler.PauseAll).Methods("POST")
	r.HandleFunc("/resume_all", handler.ResumeAll).Methods("POST")
	r.HandleFunc("/prioritize/{id}/{direction}", handler.Prioritize).Methods("POST")
	r.HandleFunc("/list_downloads", handler.ListDownloads).Methods("GET")
	r.HandleFunc("/download_file/{filename}", handler.DownloadFile).Methods("GET")
	r.HandleFunc("/open_folder", handler.OpenFolder).Methods("GET")
	r.HandleFunc("/history", handler.History).Methods("GET")
	r.HandleFunc("/health", handler.Health).Methods("GET")
	r.HandleFunc("/cleanup", handler.Cleanup).Methods("POST")
	return r
}
