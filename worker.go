package spawnkit

import (
	"os"
	"strings"

	"spawnkit/internal/workerproc"
)

const workerFlagPrefix = "-spawnkit-worker="

// workerSignatureFromArgs scans os.Args for the flag internal/pool
// re-execs the binary with.
func workerSignatureFromArgs() (string, bool) {
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, workerFlagPrefix) {
			return strings.TrimPrefix(arg, workerFlagPrefix), true
		}
	}
	return "", false
}

// RunIfWorker is the first call a generated or hand-written main()
// should make: if the process was re-executed as a worker it runs the
// worker loop and returns true (the caller should exit immediately
// afterwards); otherwise it returns false and the caller proceeds with
// its normal startup.
func RunIfWorker() (ranAsWorker bool, err error) {
	if _, ok := workerSignatureFromArgs(); !ok {
		return false, nil
	}
	return true, workerproc.RunWorker()
}
