// Package binary installs the Cuberite server executable and its server
// data: it downloads published archives, verifies them against their SHA-1
// sidecar files, and extracts them into the install root or server directory.
//
// # Verification
//
// Every artifact "<name>.zip" on the download host is published with a
// sidecar "<name>.zip.sha1" containing "<hex-digest> <filename>". After a
// download the digest of the local file is compared to the sidecar:
//   - A mismatch triggers a full re-download while the retry budget lasts
//   - A missing or empty sidecar fails the install without retrying
//   - When an OpenPGP keyring is configured, "<name>.zip.sig" must also
//     verify against it
//
// # Usage
//
//	inst, err := binary.NewInstaller(binary.Config{
//	    InstallRoot: paths.DataDir(),
//	    ServerDir:   paths.ServerDir(),
//	    CacheDir:    paths.CacheDir(),
//	    ABI:         info.ABI,
//	    Progress:    svcState,
//	    RunChecker:  svcState,
//	})
//	if err != nil {
//	    return err
//	}
//	err = inst.InstallBoth(ctx)
//
// # Architecture
//
//   - Installer: download+verify+retry, extraction, install state
//   - Downloader: streamed HTTP download with progress and sleep inhibition
//   - Verifier: SHA-1 digests and optional detached signatures
//   - Extractor: zip extraction
package binary
