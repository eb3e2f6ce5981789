package standardize

import (
	"github.com/gzhole/memscope/internal/model"
)

// Field aliases, preferred name first. Volatility 3 uses CamelCase column
// names; Rekall and MemProcFS use snake or lower case.
var (
	pidKeys       = []string{"pid", "PID", "Pid", "process_id"}
	nameKeys      = []string{"name", "ImageFileName", "Name", "COMM", "comm", "process_name"}
	ppidKeys      = []string{"parent_pid", "PPID", "ppid", "PPid"}
	cmdlineKeys   = []string{"command_line", "cmdline", "CommandLine", "Args", "cmd"}
	startKeys     = []string{"start_time", "CreateTime", "create_time", "StartTime"}
	memKeys       = []string{"memory_usage", "WorkingSetSize", "rss", "vm_size"}
	threadKeys    = []string{"threads", "Threads", "thread_count"}
	localAddrKeys = []string{"local_address", "LocalAddr", "local_addr", "laddr"}
	localPortKeys = []string{"local_port", "LocalPort", "lport"}
	remAddrKeys   = []string{"remote_address", "ForeignAddr", "remote_addr", "raddr"}
	remPortKeys   = []string{"remote_port", "ForeignPort", "rport"}
	protoKeys     = []string{"protocol", "Proto", "proto"}
	stateKeys     = []string{"state", "State"}
	ownerKeys     = []string{"process_name", "Owner", "owner", "ImageFileName", "COMM"}
	baseKeys      = []string{"base_address", "Base", "Offset", "base"}
	sizeKeys      = []string{"size", "Size"}
	pathKeys      = []string{"path", "Path", "FullDllName", "file_path"}
	startAddrKeys = []string{"start_address", "Start VPN", "Start", "start"}
	endAddrKeys   = []string{"end_address", "End VPN", "End", "end"}
	protectKeys   = []string{"protection", "Protection", "Flags", "flags"}
	regionTyKeys  = []string{"type", "Tag", "Type", "vad_type"}
	artTypeKeys   = []string{"type", "Type"}
	descKeys      = []string{"description", "Description", "Notes", "Hexdump"}
	locationKeys  = []string{"location", "Location", "Process"}
	confKeys      = []string{"confidence", "Confidence"}
	severityKeys  = []string{"severity", "Severity"}
)

func decodeProcess(r model.RawRecord) model.Process {
	return model.Process{
		PID:         r.Int(0, pidKeys...),
		Name:        r.String("unknown", nameKeys...),
		ParentPID:   r.Int(0, ppidKeys...),
		CommandLine: r.String("", cmdlineKeys...),
		StartTime:   r.String("", startKeys...),
		MemoryUsage: r.Int(0, memKeys...),
		Threads:     r.Int(0, threadKeys...),
	}
}

func decodeConnection(r model.RawRecord) model.NetworkConnection {
	return model.NetworkConnection{
		LocalAddress:  r.String("", localAddrKeys...),
		LocalPort:     r.Int(0, localPortKeys...),
		RemoteAddress: r.String("", remAddrKeys...),
		RemotePort:    r.Int(0, remPortKeys...),
		Protocol:      r.String("", protoKeys...),
		State:         r.String("", stateKeys...),
		PID:           r.Int(0, pidKeys...),
		ProcessName:   r.String("", ownerKeys...),
	}
}

func decodeModule(r model.RawRecord) model.KernelModule {
	return model.KernelModule{
		Name:        r.String("", nameKeys...),
		BaseAddress: r.Address("", baseKeys...),
		Size:        r.Int(0, sizeKeys...),
		Path:        r.String("", pathKeys...),
	}
}

func decodeRegion(r model.RawRecord) model.MemoryRegion {
	return model.MemoryRegion{
		StartAddress: r.Address("", startAddrKeys...),
		EndAddress:   r.Address("", endAddrKeys...),
		Size:         r.Int(0, sizeKeys...),
		Protection:   r.String("", protectKeys...),
		Type:         r.String("", regionTyKeys...),
	}
}

func decodeArtifact(r model.RawRecord) model.Artifact {
	return model.Artifact{
		Type:        r.String("", artTypeKeys...),
		Description: r.String("", descKeys...),
		Location:    r.String("", locationKeys...),
		Confidence:  clamp01(r.Float(0, confKeys...)),
		Severity:    normalizeSeverity(r.String("low", severityKeys...)),
	}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	}
	return f
}
