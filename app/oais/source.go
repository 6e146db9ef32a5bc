// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package oais

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Source provides the raw export files that enter the SIP.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

type LocalSource struct {
	Dir string
}

func (s LocalSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.Dir, name))
}

// SFTPSource reads the raw exports from a directory on an SFTP server.
type SFTPSource struct {
	client *sftp.Client
	conn   *ssh.Client
	dir    string
}

func NewSFTPSource(sftpUrl, user, pass, dir string) (*SFTPSource, error) {
	auths := []ssh.AuthMethod{ssh.Password(pass)}
	config := ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	conn, err := ssh.Dial("tcp", sftpUrl, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to [%s]: %v", sftpUrl, err)
	}
	cl, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to start SFTP subsystem: %v", err)
	}
	return &SFTPSource{client: cl, conn: conn, dir: dir}, nil
}

func (s *SFTPSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := s.client.Open(path.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("opening %v on sftp server: %w", name, err)
	}
	return f, nil
}

func (s *SFTPSource) Close() error {
	err := s.client.Close()
	s.conn.Close()
	return err
}
