// Package ctl implements the Controller personality: pg_ctl-compatible
// start/stop/restart sub-commands plus passthrough of everything else to
// the vendor pg_ctl binary.
package ctl

// Options holds the core pg_ctl flag subset this controller understands.
// Windows-only flags (-N/-P/-S/-U) are accepted and ignored, matching the
// vendor tool's own tolerance for platform-irrelevant flags.
type Options struct {
	DataDir string // -D
	LogFile string // -l
	Mode    string // -m
	Extra   string // -o, passed through verbatim to postgres
	Silent  bool   // -s
	Timeout string // -t
	Wait    bool   // -w
	NoWait  bool   // -W

	Command string   // start | stop | restart | <passthrough>
	Rest    []string // the full original argv, for passthrough
}

var windowsOnlyFlags = map[string]bool{"-N": true, "-P": true, "-S": true, "-U": true}

// ParseArgv extracts the core pg_ctl option subset and the sub-command.
// Rest holds a copy of the whole argv, unrecognized flags included, for
// passthrough.
func ParseArgv(argv []string) Options {
	var opts Options

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "-D" && i+1 < len(argv):
			opts.DataDir = argv[i+1]
			i++
		case arg == "-l" && i+1 < len(argv):
			opts.LogFile = argv[i+1]
			i++
		case arg == "-m" && i+1 < len(argv):
			opts.Mode = argv[i+1]
			i++
		case arg == "-o" && i+1 < len(argv):
			opts.Extra = argv[i+1]
			i++
		case arg == "-t" && i+1 < len(argv):
			opts.Timeout = argv[i+1]
			i++
		case arg == "-s":
			opts.Silent = true
		case arg == "-w":
			opts.Wait = true
		case arg == "-W":
			opts.NoWait = true
		case windowsOnlyFlags[arg]:
			// accepted, ignored, together with the value each of them takes
			if i+1 < len(argv) {
				i++
			}
		case opts.Command == "" && len(arg) > 0 && arg[0] != '-':
			opts.Command = arg
		}
	}

	opts.Rest = append([]string{}, argv...)
	return opts
}
