// SPDX-FileCopyrightText: 2026 The icewire authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import "errors"

var (
	// ErrNoDevice is returned if [Config.Device] is empty.
	ErrNoDevice = errors.New("no device given")

	// ErrBaudRateInvalid is returned if [Config.BaudRate] is negative.
	ErrBaudRateInvalid = errors.New("invalid baud rate")
)
