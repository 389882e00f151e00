/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

func main() {
	log.SetLogger(logr.Discard())

	if err := execute(); err != nil {
		os.Exit(1)
	}
}
