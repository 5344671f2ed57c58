// Copyright 2017 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kernelfinalize implements C7: locating the kernel and initramfs
// in a root filesystem, hashing them into a boot checksum, and installing
// canonical copies under stable names.
package kernelfinalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/kernelfinalize")

const usrLibOstreeBoot = "usr/lib/ostree-boot"

// DestinationPolicy controls where Finalize additionally writes copies of
// the legacy-named boot artifacts (they are copied, not hardlinked).
type DestinationPolicy int

const (
	// Auto only copies into a destination that already contained a
	// kernel.
	Auto DestinationPolicy = iota
	UsrLibOstreeBoot
	SlashBoot
)

// Located is the result of Locate: where the kernel and (optional)
// initramfs were found in a root filesystem.
type Located struct {
	// Kver is the kernel version, with any 64-hex-char suffix stripped
	// when discovered via a boot directory.
	Kver          string
	BootDir       string
	KernelPath    string
	InitramfsPath string // relative to rootfs; "" if absent
}

func has64HexSuffix(s string) (string, bool) {
	if len(s) < 65 {
		return s, false
	}
	suffix := s[len(s)-64:]
	for _, c := range suffix {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return s, false
		}
	}
	if s[len(s)-65] != '-' {
		return s, false
	}
	return s[:len(s)-65], true
}

func findInBootdir(rootfs, bootdir string, stripSuffix bool) (kver, kernelPath, initramfsPath string, err error) {
	entries, err := os.ReadDir(filepath.Join(rootfs, bootdir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", "", nil
		}
		return "", "", "", err
	}

	var foundKernel, foundInitramfs string
	for _, e := range entries {
		name := e.Name()
		switch {
		case name == "vmlinuz" || strings.HasPrefix(name, "vmlinuz-"):
			if foundKernel != "" {
				return "", "", "", rpmostreeerr.Newf(rpmostreeerr.KindResolution,
					"multiple vmlinuz in %s: %q and %q", bootdir, foundKernel, name)
			}
			foundKernel = name
			if stripSuffix {
				kver = strings.TrimPrefix(name, "vmlinuz-")
			}
		case name == "initramfs.img" || strings.HasPrefix(name, "initramfs-"):
			if foundInitramfs != "" {
				return "", "", "", rpmostreeerr.Newf(rpmostreeerr.KindResolution,
					"multiple initramfs in %s: %q and %q", bootdir, foundInitramfs, name)
			}
			foundInitramfs = name
		}
	}

	if foundKernel == "" {
		return "", "", "", nil
	}
	if stripSuffix {
		if stripped, ok := has64HexSuffix(kver); ok {
			kver = stripped
		}
	}
	kernelPath = filepath.Join(bootdir, foundKernel)
	if foundInitramfs != "" {
		initramfsPath = filepath.Join(bootdir, foundInitramfs)
	}
	return kver, kernelPath, initramfsPath, nil
}

func findDirWithVmlinuz(rootfs, subpath string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(rootfs, subpath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var found string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(rootfs, subpath, e.Name(), "vmlinuz")); err == nil {
			if found != "" {
				return "", rpmostreeerr.Newf(rpmostreeerr.KindResolution,
					"multiple kernels (vmlinuz) found in %s: %q and %q", subpath, found, e.Name())
			}
			found = e.Name()
		}
	}
	return found, nil
}

// Locate searches for the kernel and initramfs in rootfs, per the §4.7
// search strategy: usr/lib/ostree-boot, then /boot, then the single
// usr/lib/modules/* subdirectory containing a vmlinuz.
func Locate(rootfs string) (*Located, error) {
	kver, kernelPath, initramfsPath, err := findInBootdir(rootfs, usrLibOstreeBoot, true)
	if err != nil {
		return nil, err
	}
	if kernelPath != "" {
		return &Located{Kver: kver, BootDir: usrLibOstreeBoot, KernelPath: kernelPath, InitramfsPath: initramfsPath}, nil
	}

	kver, kernelPath, initramfsPath, err = findInBootdir(rootfs, "boot", true)
	if err != nil {
		return nil, err
	}
	if kernelPath != "" {
		return &Located{Kver: kver, BootDir: "boot", KernelPath: kernelPath, InitramfsPath: initramfsPath}, nil
	}

	modversionDir, err := findDirWithVmlinuz(rootfs, "usr/lib/modules")
	if err != nil {
		return nil, err
	}
	if modversionDir == "" {
		return nil, rpmostreeerr.New(rpmostreeerr.KindResolution, "unable to find kernel (vmlinuz) in /boot or usr/lib/modules")
	}
	subdir := filepath.Join("usr/lib/modules", modversionDir)
	_, kernelPath, initramfsPath, err = findInBootdir(rootfs, subdir, false)
	if err != nil {
		return nil, err
	}
	return &Located{Kver: modversionDir, BootDir: subdir, KernelPath: kernelPath, InitramfsPath: initramfsPath}, nil
}

// BootChecksum computes SHA-256(kernel || initramfs) as a lowercase hex
// string.
func BootChecksum(kernel, initramfs []byte) string {
	h := sha256.New()
	h.Write(kernel)
	h.Write(initramfs)
	return hex.EncodeToString(h.Sum(nil))
}

// FinalizeInput carries the inputs to Finalize.
type FinalizeInput struct {
	Rootfs            string
	Kver              string
	KernelPath        string // relative to Rootfs
	NewInitramfsPath  string // optional: a freshly generated initramfs to install, relative to Rootfs or absolute
	DestinationPolicy DestinationPolicy
}

// Finalize installs the kernel and (if provided) a freshly generated
// initramfs under their stable usr/lib/modules/<kver> names, computes the
// boot checksum, and (per destination policy) additionally writes the
// legacy vmlinuz-<kver>-<bootcksum> / initramfs-<kver>.img-<bootcksum>
// pair into usr/lib/ostree-boot and/or /boot. The legacy pair is written
// as independent file copies; it is not hardlinked to the stable names.
func Finalize(in FinalizeInput) (bootChecksum string, err error) {
	modulesDir := filepath.Join(in.Rootfs, "usr/lib/modules", in.Kver)
	if err := os.MkdirAll(modulesDir, 0o755); err != nil {
		return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "creating modules directory")
	}

	kernelData, err := os.ReadFile(filepath.Join(in.Rootfs, in.KernelPath))
	if err != nil {
		return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading kernel")
	}

	initramfsDst := filepath.Join(modulesDir, "initramfs.img")
	var initramfsData []byte
	if in.NewInitramfsPath != "" {
		initramfsData, err = os.ReadFile(in.NewInitramfsPath)
		if err != nil {
			return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading generated initramfs")
		}
		if err := os.RemoveAll(initramfsDst); err != nil && !os.IsNotExist(err) {
			return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "removing stale initramfs")
		}
		if err := os.WriteFile(initramfsDst, initramfsData, 0o644); err != nil {
			return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "installing new initramfs")
		}
	} else {
		initramfsData, err = os.ReadFile(initramfsDst)
		if err != nil && !os.IsNotExist(err) {
			return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading existing initramfs")
		}
	}

	bootChecksum = BootChecksum(kernelData, initramfsData)

	kernelDst := filepath.Join(modulesDir, "vmlinuz")
	if _, err := os.Stat(kernelDst); err != nil {
		if !os.IsNotExist(err) {
			return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "stat kernel destination")
		}
		if err := os.WriteFile(kernelDst, kernelData, 0o644); err != nil {
			return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "installing kernel")
		}
	}

	destinations := destinationsFor(in.Rootfs, in.DestinationPolicy)
	for _, destBootdir := range destinations {
		if err := installLegacyPair(in.Rootfs, destBootdir, in.Kver, bootChecksum, kernelData, initramfsData); err != nil {
			return "", err
		}
	}

	return bootChecksum, nil
}

func destinationsFor(rootfs string, policy DestinationPolicy) []string {
	switch policy {
	case UsrLibOstreeBoot:
		return []string{usrLibOstreeBoot}
	case SlashBoot:
		return []string{"boot"}
	default: // Auto
		var dests []string
		for _, d := range []string{usrLibOstreeBoot, "boot"} {
			if hasKernel(rootfs, d) {
				dests = append(dests, d)
			}
		}
		return dests
	}
}

func hasKernel(rootfs, bootdir string) bool {
	entries, err := os.ReadDir(filepath.Join(rootfs, bootdir))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() == "vmlinuz" || strings.HasPrefix(e.Name(), "vmlinuz-") {
			return true
		}
	}
	return false
}

func installLegacyPair(rootfs, bootdir, kver, bootChecksum string, kernelData, initramfsData []byte) error {
	full := filepath.Join(rootfs, bootdir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "creating legacy boot directory")
	}

	existingKver, existingKernel, existingInitramfs, err := findInBootdir(rootfs, bootdir, true)
	if err != nil {
		return err
	}
	if existingKernel != "" && existingKver != kver {
		_ = os.Remove(filepath.Join(rootfs, existingKernel))
		if existingInitramfs != "" {
			_ = os.Remove(filepath.Join(rootfs, existingInitramfs))
		}
	}

	kernelName := fmt.Sprintf("vmlinuz-%s-%s", kver, bootChecksum)
	if err := os.WriteFile(filepath.Join(full, kernelName), kernelData, 0o644); err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "linking legacy kernel")
	}
	initramfsName := fmt.Sprintf("initramfs-%s.img-%s", kver, bootChecksum)
	if err := os.WriteFile(filepath.Join(full, initramfsName), initramfsData, 0o644); err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "linking legacy initramfs")
	}
	return nil
}

// RemoveKernel deletes all kernel/initramfs boot artifacts for kver from
// rootfs: the usr/lib/ostree-boot and /boot legacy pairs, and depmod
// outputs, as happens when the kernel package is replaced as an override.
// usr/lib/modules/<kver>/vmlinuz itself is left for the new install to
// replace.
func RemoveKernel(rootfs, kver string) error {
	for _, bootdir := range []string{usrLibOstreeBoot, "boot"} {
		_, kernelPath, initramfsPath, err := findInBootdir(rootfs, bootdir, true)
		if err != nil {
			return err
		}
		if kernelPath != "" {
			if err := os.Remove(filepath.Join(rootfs, kernelPath)); err != nil && !os.IsNotExist(err) {
				return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "removing legacy kernel")
			}
		}
		if initramfsPath != "" {
			if err := os.Remove(filepath.Join(rootfs, initramfsPath)); err != nil && !os.IsNotExist(err) {
				return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "removing legacy initramfs")
			}
		}
	}

	depmodDir := filepath.Join(rootfs, "usr/lib/modules", kver)
	entries, err := os.ReadDir(depmodDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading modules directory")
	}
	for _, e := range entries {
		if e.Name() == "vmlinuz" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(depmodDir, e.Name())); err != nil {
			return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "removing depmod output "+e.Name())
		}
	}
	return nil
}
