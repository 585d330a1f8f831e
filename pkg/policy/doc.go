// Package policy checks compiled configuration against rego policies.
//
// Each .rego file is compiled on its own and queried for two partial set
// rules in its package:
//
//	package confts.ports
//
//	deny contains msg if {
//		some name, svc in input.output.services
//		svc.port < 1024
//		msg := sprintf("service %s uses privileged port %d", [name, svc.port])
//	}
//
// deny messages fail the build, warn messages are reported. Set members may be
// strings or objects with a msg field. The input document has two keys:
// output, the compiled value, and build, which carries the entry, format,
// macro flag and dependency list.
//
// Loader reads policies from files and directories and can watch them, handing
// each reloaded set to Engine.Load.
package policy
