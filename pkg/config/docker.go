package config

import (
	"os"
	"sync"
)

// dockerEnvPath exists in every Docker container.
var dockerEnvPath = "/.dockerenv"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the process runs inside a Docker container.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvPath)
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker rewrites loopback hosts to host.docker.internal inside Docker so the
// datasource, feedback database and Redis on the host machine stay reachable.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
