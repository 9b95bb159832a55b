package metadoc

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/snapvault/snapvault/pkg/util"
)

// New builds a fresh document for a backup run. The file list and totals
// are filled in later via SetFiles, once discovery has run.
func New(backupName string, includeHidden bool, includes, excludes []string, rootPath, appVersion string) *Document {
	return &Document{
		FormatVersion:   FormatVersion,
		AppVersion:      appVersion,
		Timestamp:       time.Now(),
		BackupName:      backupName,
		IncludeHidden:   includeHidden,
		IncludePatterns: includes,
		ExcludePatterns: excludes,
		SystemInfo:      CollectSystemInfo(),
		EnvironmentInfo: CollectEnvironmentInfo(rootPath),
		BackupAuthor:    CollectAuthor(),
	}
}

// CollectSystemInfo gathers host facts for the metadata document.
// Collection failures are recorded rather than propagated: metadata stays
// useful even when a probe is unavailable inside a container.
func CollectSystemInfo() map[string]any {
	info := map[string]any{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}

	if hi, err := host.Info(); err == nil {
		info["hostname"] = hi.Hostname
		info["platform"] = hi.Platform
		info["platformVersion"] = hi.PlatformVersion
		info["kernelVersion"] = hi.KernelVersion
	} else {
		info["hostError"] = err.Error()
	}

	if n, err := cpu.Counts(true); err == nil {
		info["cpuCount"] = n
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info["memoryTotal"] = vm.Total
	}

	return info
}

// CollectEnvironmentInfo gathers process environment facts, always
// including the capture root under EnvRootKey.
func CollectEnvironmentInfo(rootPath string) map[string]any {
	info := map[string]any{
		EnvRootKey: util.TrimRoot(rootPath),
	}

	if wd, err := os.Getwd(); err == nil {
		info["workingDirectory"] = wd
	}
	if home, err := os.UserHomeDir(); err == nil {
		info["home"] = home
	}
	zone, _ := time.Now().Zone()
	info["timezone"] = zone

	return info
}

// CollectAuthor returns a user@host identifier for the capturing system.
func CollectAuthor() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s@%s", username, hostname)
}
