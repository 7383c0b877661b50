// 包 version：构建版本信息；Commit 可由 -ldflags "-X ipregion/internal/version.Commit=..." 注入
package version

import "runtime/debug"

var Commit = ""

// Get：返回提交哈希与是否包含未提交改动；未注入时读取构建信息
// 约束：go run / go test 构建不含 vcs 信息，此时返回 "dev"
func Get() (commit string, modified bool) {
	if Commit != "" {
		return Commit, false
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				commit = s.Value
			case "vcs.modified":
				modified = s.Value == "true"
			}
		}
	}
	if commit == "" {
		commit = "dev"
	}
	return commit, modified
}
