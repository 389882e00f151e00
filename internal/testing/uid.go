/*
SPDX-License-Identifier: Apache-2.0
*/

package testing

import (
	"github.com/google/uuid"
	apitypes "k8s.io/apimachinery/pkg/types"
)

// newUID synthesizes a resource UID the way an API server would assign
// one, for fixtures that need a stable, collision-free identity without a
// running cluster.
func newUID() apitypes.UID {
	return apitypes.UID(uuid.NewString())
}
