package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/ballotbox/ballotbox/internal/appid"
)

// Build metadata, injected from main via SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
	appIdentity  *appid.Identity
)

// SetVersionInfo sets the version information for the handler
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppIdentity overrides the identity reported by /version.
func SetAppIdentity(identity *appid.Identity) {
	appIdentity = identity
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	API          APIInfo     `json:"api"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// APIInfo reports the protocol version served under /api/v{N}.
type APIInfo struct {
	ProtocolVersion int    `json:"protocol_version"`
	Prefix          string `json:"prefix"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler returns a handler reporting build, protocol and runtime details.
func VersionHandler(protocolVersion int, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := crucible.GetVersion()

		identity := appIdentity
		if identity == nil {
			identity, _ = appid.Get(r.Context())
		}

		writeJSON(w, http.StatusOK, VersionResponse{
			App: AppInfo{
				Name:      identity.BinaryName,
				Version:   AppVersion,
				Commit:    AppCommit,
				BuildDate: AppBuildDate,
				GoVersion: runtime.Version(),
			},
			API: APIInfo{
				ProtocolVersion: protocolVersion,
				Prefix:          prefix,
			},
			Dependencies: DepInfo{
				Gofulmen: version.Gofulmen,
				Crucible: version.Crucible,
			},
			Runtime: RuntimeInfo{
				Platform:      runtime.GOOS + "/" + runtime.GOARCH,
				NumCPU:        runtime.NumCPU(),
				NumGoroutines: runtime.NumGoroutine(),
			},
		})
	}
}
