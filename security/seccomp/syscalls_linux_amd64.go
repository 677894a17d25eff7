package seccomp

import "golang.org/x/sys/unix"

const nativeArch = unix.AUDIT_ARCH_X86_64

// syscalls maps filterable syscall names to their amd64 numbers. The table
// only needs to cover names that appear in profiles; an absent name cannot
// be invoked on this architecture and is skipped during assembly.
var syscalls = map[string]uint32{
	"acct":              unix.SYS_ACCT,
	"add_key":           unix.SYS_ADD_KEY,
	"bpf":               unix.SYS_BPF,
	"chroot":            unix.SYS_CHROOT,
	"clock_adjtime":     unix.SYS_CLOCK_ADJTIME,
	"clock_settime":     unix.SYS_CLOCK_SETTIME,
	"delete_module":     unix.SYS_DELETE_MODULE,
	"finit_module":      unix.SYS_FINIT_MODULE,
	"fork":              unix.SYS_FORK,
	"getcwd":            unix.SYS_GETCWD,
	"getpid":            unix.SYS_GETPID,
	"init_module":       unix.SYS_INIT_MODULE,
	"ioperm":            unix.SYS_IOPERM,
	"iopl":              unix.SYS_IOPL,
	"kcmp":              unix.SYS_KCMP,
	"kexec_file_load":   unix.SYS_KEXEC_FILE_LOAD,
	"kexec_load":        unix.SYS_KEXEC_LOAD,
	"keyctl":            unix.SYS_KEYCTL,
	"kill":              unix.SYS_KILL,
	"lookup_dcookie":    unix.SYS_LOOKUP_DCOOKIE,
	"mkdir":             unix.SYS_MKDIR,
	"mknod":             unix.SYS_MKNOD,
	"mknodat":           unix.SYS_MKNODAT,
	"mount":             unix.SYS_MOUNT,
	"move_pages":        unix.SYS_MOVE_PAGES,
	"open_by_handle_at": unix.SYS_OPEN_BY_HANDLE_AT,
	"perf_event_open":   unix.SYS_PERF_EVENT_OPEN,
	"personality":       unix.SYS_PERSONALITY,
	"pivot_root":        unix.SYS_PIVOT_ROOT,
	"process_vm_readv":  unix.SYS_PROCESS_VM_READV,
	"process_vm_writev": unix.SYS_PROCESS_VM_WRITEV,
	"ptrace":            unix.SYS_PTRACE,
	"quotactl":          unix.SYS_QUOTACTL,
	"reboot":            unix.SYS_REBOOT,
	"request_key":       unix.SYS_REQUEST_KEY,
	"setdomainname":     unix.SYS_SETDOMAINNAME,
	"sethostname":       unix.SYS_SETHOSTNAME,
	"setns":             unix.SYS_SETNS,
	"settimeofday":      unix.SYS_SETTIMEOFDAY,
	"swapoff":           unix.SYS_SWAPOFF,
	"swapon":            unix.SYS_SWAPON,
	"umount2":           unix.SYS_UMOUNT2,
	"unshare":           unix.SYS_UNSHARE,
	"uselib":            unix.SYS_USELIB,
	"userfaultfd":       unix.SYS_USERFAULTFD,
	"ustat":             unix.SYS_USTAT,
}
