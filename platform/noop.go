package platform

import "os/exec"

// noopEnforcer is the fallback for operating systems without a native
// sandbox. It applies nothing and reports every requested protection as a
// gap, leaving only the caller-side resource limits in effect.
type noopEnforcer struct{}

// NewNoopEnforcer returns an Enforcer that enforces nothing. It is used on
// unsupported operating systems and in tests.
func NewNoopEnforcer() Enforcer {
	return &noopEnforcer{}
}

func (n *noopEnforcer) Name() string { return "noop" }

func (n *noopEnforcer) Capabilities() Capabilities {
	return Capabilities{}
}

func (n *noopEnforcer) Prepare(_ *exec.Cmd, spec *Spec) ([]Gap, error) {
	if spec == nil {
		spec = &Spec{}
	}

	var gaps []Gap
	if len(spec.ReadPaths) > 0 || len(spec.WritePaths) > 0 || len(spec.DenyPaths) > 0 {
		gaps = append(gaps, Gap{
			Rule:   "filesystem-isolation",
			Detail: "no filesystem sandbox available on this operating system",
		})
	}
	if spec.DenyNetwork {
		gaps = append(gaps, Gap{
			Rule:   "network-deny",
			Detail: "no network sandbox available on this operating system",
		})
	}
	return gaps, nil
}
