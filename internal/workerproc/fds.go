package workerproc

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"spawnkit/internal/errs"
)

// sendFiles passes files across control, a unix domain socket, via
// SCM_RIGHTS — the dispatch entry's way of moving an *os.File or
// net.Conn transferable's file descriptor to the worker instead of
// gob-copying it, since gob has no encoding for a live fd.
func sendFiles(control *os.File, files []*os.File) error {
	if len(files) == 0 {
		return nil
	}
	conn, err := net.FileConn(control)
	if err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "sendFiles", err)
	}
	defer conn.Close()
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return errs.New(errs.CodeWorkerHost, "workerproc", "sendFiles", "control socket is not a unix domain socket")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "sendFiles", err)
	}

	fds := make([]int, len(files))
	for i, f := range files {
		fds[i] = int(f.Fd())
	}
	rights := unix.UnixRights(fds...)

	var sendErr error
	if err := raw.Control(func(fd uintptr) {
		sendErr = unix.Sendmsg(int(fd), []byte{0}, rights, nil, 0)
	}); err != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "sendFiles", err)
	}
	if sendErr != nil {
		return errs.Wrap(errs.CodeWorkerHost, "workerproc", "sendFiles", sendErr)
	}
	return nil
}

// recvFiles is the worker-side counterpart of sendFiles: it reads one
// control-socket message and returns the fds it carried as *os.File,
// in the order the dispatch entry sent them.
func recvFiles(control *os.File, n int) ([]*os.File, error) {
	if n == 0 {
		return nil, nil
	}
	conn, err := net.FileConn(control)
	if err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "workerproc", "recvFiles", err)
	}
	defer conn.Close()
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, errs.New(errs.CodeWorkerHost, "workerproc", "recvFiles", "control socket is not a unix domain socket")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "workerproc", "recvFiles", err)
	}

	oob := make([]byte, unix.CmsgSpace(n*4))
	buf := make([]byte, 1)
	var oobn int
	var recvErr error
	if err := raw.Control(func(fd uintptr) {
		_, oobn, _, _, recvErr = unix.Recvmsg(int(fd), buf, oob, 0)
	}); err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "workerproc", "recvFiles", err)
	}
	if recvErr != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "workerproc", "recvFiles", recvErr)
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, errs.Wrap(errs.CodeWorkerHost, "workerproc", "recvFiles", err)
	}
	var files []*os.File
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			return nil, errs.Wrap(errs.CodeWorkerHost, "workerproc", "recvFiles", err)
		}
		for _, fd := range fds {
			files = append(files, os.NewFile(uintptr(fd), "spawnkit-transferable"))
		}
	}
	return files, nil
}
