// Package ezviz is a thin client for the EZVIZ cloud API.
//
// It covers only what the HP7 bridge needs: account login (with region
// redirect), logout, the device list, a flattened raw status for one
// device, remote unlock of a numbered lock, and an authenticated fetch of
// alarm snapshot images.
//
// The client does not interpret device values. Status returns the vendor
// keys as-is (PIR_Status, Motion_Trigger, WIFI, ...) and leaves
// normalisation to the status package.
//
// Thread Safety:
//   - A Client is safe for concurrent use. The session token is guarded
//     internally and replaced as a whole on login.
package ezviz
