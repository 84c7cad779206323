// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build unix

package botvisor

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

// setCredential arranges for c to run as the named user and group, the
// way upstart's setuid and setgid stanzas do.  With a user but no group,
// the user's primary group and supplementary groups are used.
func setCredential(c *exec.Cmd, usr, grp string) error {
	if usr == "" && grp == "" {
		return nil
	}
	cred := &syscall.Credential{
		Uid: uint32(os.Getuid()),
		Gid: uint32(os.Getgid()),
	}
	if usr != "" {
		u, e := user.Lookup(usr)
		if e != nil {
			return fmt.Errorf("%w: %s", ErrUnknownUser, usr)
		}
		uid, e := strconv.ParseUint(u.Uid, 10, 32)
		if e != nil {
			return fmt.Errorf("%w: %s: uid %s", ErrUnknownUser, usr, u.Uid)
		}
		gid, e := strconv.ParseUint(u.Gid, 10, 32)
		if e != nil {
			return fmt.Errorf("%w: %s: gid %s", ErrUnknownUser, usr, u.Gid)
		}
		cred.Uid = uint32(uid)
		cred.Gid = uint32(gid)
		if ids, e := u.GroupIds(); e == nil {
			for _, id := range ids {
				if g, e := strconv.ParseUint(id, 10, 32); e == nil {
					cred.Groups = append(cred.Groups, uint32(g))
				}
			}
		}
	}
	if grp != "" {
		g, e := user.LookupGroup(grp)
		if e != nil {
			return fmt.Errorf("%w: group %s", ErrUnknownUser, grp)
		}
		gid, e := strconv.ParseUint(g.Gid, 10, 32)
		if e != nil {
			return fmt.Errorf("%w: group %s: gid %s", ErrUnknownUser, grp, g.Gid)
		}
		cred.Gid = uint32(gid)
	}
	// Changing identity requires privilege; when we already are the
	// requested user, leave the credential alone so unprivileged
	// daemons can still run jobs that name their own user.
	if int(cred.Uid) == os.Getuid() && int(cred.Gid) == os.Getgid() {
		return nil
	}
	if c.SysProcAttr == nil {
		c.SysProcAttr = &syscall.SysProcAttr{}
	}
	c.SysProcAttr.Credential = cred
	return nil
}

// setProcessGroup puts the child in a process group of its own, so that
// signals aimed at botvisord's group do not reach it.
func setProcessGroup(c *exec.Cmd) {
	if c.SysProcAttr == nil {
		c.SysProcAttr = &syscall.SysProcAttr{}
	}
	c.SysProcAttr.Setpgid = true
}
