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

package kernelfinalize

import (
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocateUsrLibOstreeBoot(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "usr/lib/ostree-boot/vmlinuz-5.14.0-1"), []byte("kernel"))
	mustWrite(t, filepath.Join(root, "usr/lib/ostree-boot/initramfs-5.14.0-1.img"), []byte("initramfs"))

	loc, err := Locate(root)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.Kver != "5.14.0-1" {
		t.Fatalf("expected kver 5.14.0-1, got %q", loc.Kver)
	}
	if loc.BootDir != usrLibOstreeBoot {
		t.Fatalf("expected usr/lib/ostree-boot, got %q", loc.BootDir)
	}
}

func TestLocateStripsHexSuffix(t *testing.T) {
	root := t.TempDir()
	cksum := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	mustWrite(t, filepath.Join(root, "usr/lib/ostree-boot/vmlinuz-5.14.0-1-"+cksum), []byte("kernel"))

	loc, err := Locate(root)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.Kver != "5.14.0-1" {
		t.Fatalf("expected suffix stripped, got %q", loc.Kver)
	}
}

func TestLocateModulesDirFallback(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "usr/lib/modules/5.14.0-1/vmlinuz"), []byte("kernel"))

	loc, err := Locate(root)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if loc.Kver != "5.14.0-1" {
		t.Fatalf("expected kver 5.14.0-1, got %q", loc.Kver)
	}
}

func TestLocateMultipleKernelsIsError(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "usr/lib/ostree-boot/vmlinuz-1"), []byte("a"))
	mustWrite(t, filepath.Join(root, "usr/lib/ostree-boot/vmlinuz-2"), []byte("b"))

	if _, err := Locate(root); err == nil {
		t.Fatal("expected error for multiple kernels")
	}
}

func TestLocateNoKernelIsError(t *testing.T) {
	root := t.TempDir()
	if _, err := Locate(root); err == nil {
		t.Fatal("expected error when no kernel is found anywhere")
	}
}

func TestBootChecksumDeterministic(t *testing.T) {
	a := BootChecksum([]byte("kernel"), []byte("initramfs"))
	b := BootChecksum([]byte("kernel"), []byte("initramfs"))
	if a != b {
		t.Fatal("expected BootChecksum to be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFinalizeInstallsAndHashes(t *testing.T) {
	root := t.TempDir()
	kernelPath := "usr/lib/modules/5.14.0-1/vmlinuz-orig"
	mustWrite(t, filepath.Join(root, kernelPath), []byte("kernel-bytes"))

	initramfsSrc := filepath.Join(t.TempDir(), "initramfs.img")
	if err := os.WriteFile(initramfsSrc, []byte("initramfs-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	cksum, err := Finalize(FinalizeInput{
		Rootfs:            root,
		Kver:              "5.14.0-1",
		KernelPath:        kernelPath,
		NewInitramfsPath:  initramfsSrc,
		DestinationPolicy: UsrLibOstreeBoot,
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(cksum) != 64 {
		t.Fatalf("expected 64-char boot checksum, got %q", cksum)
	}

	initramfsDst := filepath.Join(root, "usr/lib/modules/5.14.0-1/initramfs.img")
	data, err := os.ReadFile(initramfsDst)
	if err != nil {
		t.Fatalf("expected initramfs installed at canonical path: %v", err)
	}
	if string(data) != "initramfs-bytes" {
		t.Fatalf("unexpected initramfs content: %q", data)
	}

	legacyKernel := filepath.Join(root, usrLibOstreeBoot, "vmlinuz-5.14.0-1-"+cksum)
	if _, err := os.Stat(legacyKernel); err != nil {
		t.Fatalf("expected legacy kernel pair at %q: %v", legacyKernel, err)
	}
}

func TestRemoveKernelLeavesModulesVmlinuz(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "usr/lib/modules/5.14.0-1/vmlinuz"), []byte("kernel"))
	mustWrite(t, filepath.Join(root, "usr/lib/modules/5.14.0-1/some.ko"), []byte("module"))

	if err := RemoveKernel(root, "5.14.0-1"); err != nil {
		t.Fatalf("RemoveKernel: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "usr/lib/modules/5.14.0-1/vmlinuz")); err != nil {
		t.Fatal("expected vmlinuz to remain for the new install to replace")
	}
	if _, err := os.Stat(filepath.Join(root, "usr/lib/modules/5.14.0-1/some.ko")); !os.IsNotExist(err) {
		t.Fatal("expected depmod output to be removed")
	}
}
