// package repositories provides the persistence layer for session records
// and the liked-tracks mirror.
//
// Token columns always hold vault ciphertext; plaintext tokens never reach
// this package.
package repositories
