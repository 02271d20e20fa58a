// USB IP Display
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of USB IP Display.
//
// USB IP Display is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// USB IP Display is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with USB IP Display.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"os"

	"github.com/ZaparooProject/usb-ip-display/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
