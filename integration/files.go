// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package utk_test

import _ "embed"

//go:embed roms/ovmfSECFV.fv
var OVMFSecFV []byte
