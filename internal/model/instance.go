package model

// Instance status labels, matching the compute service vocabulary.
const (
	InstanceActive    = "ACTIVE"
	InstanceError     = "ERROR"
	InstanceShutoff   = "SHUTOFF"
	InstanceSuspended = "SUSPENDED"
	InstanceBuild     = "BUILD"
)

// Instance is a virtual machine known to the cloud platform.
type Instance struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Hypervisor string `json:"hypervisor"`
}

// Hypervisor is the detailed capacity view of one compute host.
type Hypervisor struct {
	Hostname     string `json:"hypervisor_hostname"`
	MemoryMB     uint64 `json:"memory_mb"`
	MemoryMBUsed uint64 `json:"memory_mb_used"`
	VCPUs        uint64 `json:"vcpus"`
	VCPUsUsed    uint64 `json:"vcpus_used"`
}
