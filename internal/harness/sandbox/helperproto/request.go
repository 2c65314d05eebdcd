// Package helperproto is the stdin contract between the process runner and harness-init.
package helperproto

// Limits are applied with setrlimit before exec. Zero leaves a limit untouched.
type Limits struct {
	CPUSeconds uint64 `json:"cpuSeconds" yaml:"cpuSeconds"`
	AddressMB  uint64 `json:"addressMB" yaml:"addressMB"`
	FileSizeMB uint64 `json:"fileSizeMB" yaml:"fileSizeMB"`
	OpenFiles  uint64 `json:"openFiles" yaml:"openFiles"`
	Processes  uint64 `json:"processes" yaml:"processes"`
	StackMB    uint64 `json:"stackMB" yaml:"stackMB"`
}

// Seccomp describes a deny-list filter. Listed syscalls fail with EPERM.
type Seccomp struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Deny        []string `json:"deny" yaml:"deny"`
	DenyNetwork bool     `json:"denyNetwork" yaml:"denyNetwork"`
}

// Request is written as one JSON document on the helper's stdin.
type Request struct {
	Path string   `json:"path"`
	Args []string `json:"args"`
	Env  []string `json:"env"`
	Dir  string   `json:"dir"`
	// Stdin replaces the request pipe as the target's stdin.
	Stdin   string  `json:"stdin,omitempty"`
	Limits  Limits  `json:"limits"`
	Seccomp Seccomp `json:"seccomp"`
}

// DefaultDenySyscalls blocks host-administration calls no submission needs.
var DefaultDenySyscalls = []string{
	"ptrace", "mount", "umount2", "pivot_root", "chroot", "reboot", "swapon", "swapoff",
	"kexec_load", "init_module", "finit_module", "delete_module", "setns", "unshare",
	"bpf", "perf_event_open", "acct", "settimeofday", "sethostname", "setdomainname",
}

// NetworkSyscalls are added to the deny list when DenyNetwork is set.
var NetworkSyscalls = []string{"socket", "socketpair", "connect", "bind", "listen", "accept", "accept4"}
