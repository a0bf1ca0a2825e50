package model

// InstallStatus represents the current state of an item's installation
type InstallStatus string

const (
	StatusPending        InstallStatus = "pending"
	StatusDownloading    InstallStatus = "downloading"
	StatusDownloaded     InstallStatus = "downloaded"
	StatusDownloadFailed InstallStatus = "download_failed"
	StatusInstalling     InstallStatus = "installing"
	StatusInstalled      InstallStatus = "installed"
	StatusInstallFailed  InstallStatus = "install_failed"
)

// Terminal reports whether the status is an end state of the install pipeline.
func (s InstallStatus) Terminal() bool {
	switch s {
	case StatusInstalled, StatusDownloadFailed, StatusInstallFailed:
		return true
	}
	return false
}

// PlatformSpec describes how to acquire and run an installer on one platform.
type PlatformSpec struct {
	URL         string   `mapstructure:"url" json:"url"`
	InstallArgs []string `mapstructure:"install_args" json:"install_args"`
	PathCheck   string   `mapstructure:"path_check" json:"path_check"`
}

// SoftwareSpec is one immutable catalog entry. Platforms is keyed by GOOS-style
// platform names (windows, linux, darwin).
type SoftwareSpec struct {
	Name         string                   `mapstructure:"-" json:"name"`
	Dependencies []string                 `mapstructure:"dependencies" json:"dependencies"`
	Platforms    map[string]*PlatformSpec `mapstructure:"platforms" json:"platforms"`
}

// Platform returns the acquisition descriptor for the given platform, or nil
// when the catalog has no installer for it.
func (s *SoftwareSpec) Platform(goos string) *PlatformSpec {
	if s == nil {
		return nil
	}
	return s.Platforms[goos]
}
