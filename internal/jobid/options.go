package jobid

import (
	"strconv"
	"strings"
)

// OptionKind enumerates the recognized option-line keywords from
// JobIdentity's local_options/send_options lists (spec.md §3; the
// concrete keyword set is grounded in the original's
// get_dir_options.c / get_job_options.c). Anything not recognized is
// kept as OptionUnknown rather than dropped, per spec.md §9: "Model
// this as a typed enum of recognized options ... plus an Unknown(String)
// variant for forward compatibility."
type OptionKind int

const (
	OptionUnknown OptionKind = iota
	OptionLockDot
	OptionPriority
	OptionArchive
	OptionTime
	OptionAgeLimit
	OptionDupCheck
	OptionTransRename
	OptionSubject
	OptionDeleteUnknownFiles
	OptionDeleteQueuedFiles
	OptionDeleteOldLockedFiles
	OptionDontReportUnknownFiles
	OptionReportUnknownFiles
	OptionImportantDir
	OptionWarnTime
	OptionKeepConnected
)

// DupCheckFlags select how internal/dupcheck derives a dedup key for
// the "dupcheck N FLAGS" option (get_dir_options.c's dupcheck parsing,
// dropped by the distilled spec.md and restored here — see
// SPEC_FULL.md §4.7).
type DupCheckFlags int

const (
	DupCheckFilenameOnly DupCheckFlags = iota
	DupCheckSizeAndFilename
	DupCheckContentHash
)

// Option is one parsed line from a JobIdentity's option list.
type Option struct {
	Kind OptionKind
	Raw  string

	// Arg holds the single free-form trailing argument most option
	// kinds carry (a duration, a priority char, a cron string, ...).
	Arg string

	// DupCheckTimeout and DupCheckFlags are populated only when
	// Kind == OptionDupCheck.
	DupCheckTimeout int
	DupCheckFlags   DupCheckFlags
}

// UnknownValue returns the verbatim option text for an OptionUnknown,
// matching spec.md §9's Unknown(String) variant.
func (o Option) UnknownValue() string {
	if o.Kind != OptionUnknown {
		return ""
	}
	return o.Raw
}

// ParseOption parses one option line (e.g. "dupcheck 300 1",
// "priority 3", "lock dot") into a typed Option. Lines that don't
// match a recognized keyword become OptionUnknown, never an error —
// option parsing never fails, matching the source's tolerant
// line-by-line accumulation into d_o->aoptions.
func ParseOption(line string) Option {
	trimmed := strings.TrimSpace(line)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return Option{Kind: OptionUnknown, Raw: line}
	}

	switch fields[0] {
	case "lock":
		return Option{Kind: OptionLockDot, Raw: trimmed, Arg: strings.Join(fields[1:], " ")}
	case "priority":
		if len(fields) >= 2 {
			return Option{Kind: OptionPriority, Raw: trimmed, Arg: fields[1]}
		}
	case "archive":
		if len(fields) >= 2 {
			return Option{Kind: OptionArchive, Raw: trimmed, Arg: fields[1]}
		}
	case "time":
		return Option{Kind: OptionTime, Raw: trimmed, Arg: strings.Join(fields[1:], " ")}
	case "age-limit":
		if len(fields) >= 2 {
			return Option{Kind: OptionAgeLimit, Raw: trimmed, Arg: fields[1]}
		}
	case "trans-rename":
		return Option{Kind: OptionTransRename, Raw: trimmed, Arg: strings.Join(fields[1:], " ")}
	case "subject":
		return Option{Kind: OptionSubject, Raw: trimmed, Arg: strings.Join(fields[1:], " ")}
	case "dupcheck":
		opt := Option{Kind: OptionDupCheck, Raw: trimmed}
		if len(fields) >= 2 {
			if timeout, err := strconv.Atoi(fields[1]); err == nil {
				opt.DupCheckTimeout = timeout
			}
		}
		if len(fields) >= 3 {
			if flags, err := strconv.Atoi(fields[2]); err == nil {
				opt.DupCheckFlags = DupCheckFlags(flags)
			}
		}
		return opt
	case "warn":
		if len(fields) >= 3 && fields[1] == "time" {
			return Option{Kind: OptionWarnTime, Raw: trimmed, Arg: fields[2]}
		}
	case "keep":
		if len(fields) >= 3 && fields[1] == "connected" {
			return Option{Kind: OptionKeepConnected, Raw: trimmed, Arg: fields[2]}
		}
	case "important":
		if len(fields) >= 2 && fields[1] == "dir" {
			return Option{Kind: OptionImportantDir, Raw: trimmed}
		}
	}
	return Option{Kind: OptionUnknown, Raw: trimmed}
}

// ParseOptionList splits a newline-separated option blob into Options,
// skipping blank lines.
func ParseOptionList(blob string) []Option {
	var out []Option
	for _, line := range strings.Split(blob, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, ParseOption(line))
	}
	return out
}
